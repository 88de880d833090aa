package util

import (
	log "github.com/sirupsen/logrus"
)

// Debug is the highest DPrintf level that is emitted.
var Debug uint64 = 0

// DPrintf logs at Info for level 0 and at Debug above that, so that
// noisy levels also need the logger's level lowered to show up.
func DPrintf(level uint64, format string, a ...interface{}) {
	if level > Debug {
		return
	}
	if level == 0 {
		log.Infof(format, a...)
	} else {
		log.Debugf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a+b wraps around.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}
