package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	LogLevel       string `yaml:"log_level"`
	// BackupDir is where dump artifacts are staged before upload.
	BackupDir string `yaml:"backup_dir"`
	// RetainArtifacts keeps local artifacts after a successful upload.
	RetainArtifacts bool `yaml:"retain_artifacts"`
	// PGDumpPath overrides the pg_dump binary resolved via PATH.
	PGDumpPath string `yaml:"pg_dump_path"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPListenAddr: ":8090",
		LogLevel:       "info",
		BackupDir:      filepath.Join(os.TempDir(), "savedb"),
		PGDumpPath:     "pg_dump",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.BackupDir = getEnv("BACKUP_DIR", c.BackupDir)
	c.PGDumpPath = getEnv("PG_DUMP_PATH", c.PGDumpPath)

	if v := os.Getenv("RETAIN_ARTIFACTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse RETAIN_ARTIFACTS: %w", err)
		}
		c.RetainArtifacts = b
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
