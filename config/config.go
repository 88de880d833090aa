// Package config loads blockfs settings from an optional YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/util"
)

const EnvPrefix = "BLOCKFS"

type Config struct {
	Image       string `envconfig:"IMAGE"        yaml:"image"`
	Blocks      uint64 `envconfig:"BLOCKS"       yaml:"blocks"`
	MountPoint  string `envconfig:"MOUNT_POINT"  yaml:"mountPoint"`
	LogLevel    string `envconfig:"LOG_LEVEL"    yaml:"logLevel"`
	Verbosity   uint64 `envconfig:"VERBOSITY"    yaml:"verbosity"`
	MetricsAddr string `envconfig:"METRICS_ADDR" yaml:"metricsAddr"`
	AllowOther  bool   `envconfig:"ALLOW_OTHER"  yaml:"allowOther"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
	}
}

// Load starts from Default, applies the YAML file at path if path is not
// empty, and then the BLOCKFS_* environment variables.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unmarshaling config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("missing required configuration: image / %s_IMAGE", EnvPrefix)
	}
	if c.Blocks > common.NBITBLOCK {
		return fmt.Errorf("blocks: %d exceeds the bitmap limit of %d", c.Blocks, common.NBITBLOCK)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("logLevel: %w", err)
	}
	return nil
}

// ConfigureLogging applies LogLevel to the standard logrus logger and
// Verbosity to util.DPrintf.
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	util.Debug = c.Verbosity
	return nil
}
