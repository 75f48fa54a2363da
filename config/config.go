package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"sv6tool/sawyer"
)

const (
	IndexFileName     = "objects.idx"
	UserObjectDirName = "object"
)

type Config struct {
	// ObjectDirs are scanned for installed assets. The user object directory
	// is always scanned as well.
	ObjectDirs []string
	// UserDataDir holds objects.idx and objects extracted from parks.
	UserDataDir string
	// Workers bounds the number of asset files scanned at once.
	Workers int
	// Strict turns every checksum mismatch into an error.
	Strict bool
	// AllowIncorrectChecksum loads scenarios whose checksum does not match.
	AllowIncorrectChecksum bool
	// PayloadCacheSize is the number of decoded asset payloads kept in
	// memory. Zero disables the cache.
	PayloadCacheSize int
	MaxChunkSize     int
	// LanguageID selects the strings shown for objects.
	LanguageID uint16
}

func Default() Config {
	return Config{
		UserDataDir:      DefaultUserDataDir(),
		Workers:          runtime.NumCPU(),
		PayloadCacheSize: 256,
		MaxChunkSize:     sawyer.DefaultMaxChunkSize,
	}
}

// DefaultUserDataDir returns the per-user configuration directory, or the
// working directory when it cannot be determined.
func DefaultUserDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "sv6tool")
}

func (c *Config) Validate() error {
	if c.UserDataDir == "" {
		return errors.New("user data directory is not set")
	}
	if c.Workers < 1 {
		return errors.Errorf("need at least one worker, got %d", c.Workers)
	}
	if c.PayloadCacheSize < 0 {
		return errors.Errorf("payload cache size %d is negative", c.PayloadCacheSize)
	}
	if c.MaxChunkSize <= 0 {
		return errors.Errorf("maximum chunk size %d is not positive", c.MaxChunkSize)
	}
	return nil
}

// IndexPath is where the object index is persisted.
func (c *Config) IndexPath() string {
	return filepath.Join(c.UserDataDir, IndexFileName)
}

// UserObjectDir is where objects extracted from parks are written.
func (c *Config) UserObjectDir() string {
	return filepath.Join(c.UserDataDir, UserObjectDirName)
}

// ScanDirs returns the configured object directories followed by the user
// object directory, without duplicates.
func (c *Config) ScanDirs() []string {
	seen := map[string]bool{}
	var dirs []string
	for _, d := range append(append([]string(nil), c.ObjectDirs...), c.UserObjectDir()) {
		clean := filepath.Clean(d)
		if d == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		dirs = append(dirs, clean)
	}
	return dirs
}
