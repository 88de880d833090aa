package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockfs "github.com/mit-pdos/blockfs/fs"
	"github.com/mit-pdos/blockfs/testutil"
)

func TestCopyOut(t *testing.T) {
	fsys, err := blockfs.Mount(testutil.Fixture(t))
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, copyOut(fsys, "/file.8k+", &out))
	assert.Equal(t, testutil.Content("/file.8k+", 8195), out.Bytes())
}

func TestCopyIn(t *testing.T) {
	fsys, err := blockfs.Mount(testutil.Fixture(t))
	require.NoError(t, err)

	data := testutil.Content("/dir2/new", 10000)
	require.NoError(t, copyIn(fsys, "/dir2/new", bytes.NewReader(data)))
	var out bytes.Buffer
	require.NoError(t, copyOut(fsys, "/dir2/new", &out))
	assert.Equal(t, data, out.Bytes())

	// replacing an existing file drops its old contents
	require.NoError(t, copyIn(fsys, "/file.8k+", bytes.NewReader([]byte("short"))))
	out.Reset()
	require.NoError(t, copyOut(fsys, "/file.8k+", &out))
	assert.Equal(t, "short", out.String())

	problems, err := fsys.Check()
	require.NoError(t, err)
	assert.Empty(t, problems)
}
