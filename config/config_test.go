package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanDirs(t *testing.T) {
	c := Default()
	c.UserDataDir = "/data"
	c.ObjectDirs = []string{"/game/ObjData", "/game/ObjData/", "", "/data/object"}
	require.Equal(t, []string{"/game/ObjData", filepath.Clean("/data/object")}, c.ScanDirs())
	require.Equal(t, filepath.Join("/data", "objects.idx"), c.IndexPath())
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	c.Workers = 0
	require.Error(t, c.Validate())

	c = Default()
	c.UserDataDir = ""
	require.Error(t, c.Validate())

	c = Default()
	c.PayloadCacheSize = -1
	require.Error(t, c.Validate())
}
