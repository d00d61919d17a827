// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	// DatahubRoot is the directory holding the raster datasets, one
	// {dataset}/{variable} tree per dataset, plus statistics/ and dem/.
	DatahubRoot string `yaml:"datahub_root"`

	// DEMPath points at the altitude raster. Defaults to the COP90 grid
	// under the datahub root.
	DEMPath string `yaml:"dem_path,omitempty"`

	Addr string `yaml:"addr,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// ScanWorkers bounds the per-request raster fan-out.
	ScanWorkers int `yaml:"scan_workers,omitempty"`
	// ScanStrategy selects the pool flavor: workers, group or semaphore.
	ScanStrategy string `yaml:"scan_strategy,omitempty"`

	// SecretKey signs login tokens. Data routes are open when empty.
	SecretKey string `yaml:"secret_key,omitempty"`
	// TokenTTLMinutes is the login token lifetime.
	TokenTTLMinutes int `yaml:"token_ttl_minutes,omitempty"`

	// UserDB is the path of the sqlite user account database.
	UserDB string `yaml:"user_db,omitempty"`

	// MongoURI and MongoDatabase locate the annual-comparison
	// collection. The endpoint is disabled when the URI is empty.
	MongoURI      string `yaml:"mongo_uri,omitempty"`
	MongoDatabase string `yaml:"mongo_db,omitempty"`
}

// Load reads and parses the YAML configuration file from the specified
// path, then applies environment overrides (a .env file is honoured).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.DatahubRoot == "" {
		return nil, fmt.Errorf("config %s: datahub_root is required", path)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if root := os.Getenv("DATAHUB_ROOT"); root != "" {
		c.DatahubRoot = root
	}
	if dem := os.Getenv("DEM_PATH"); dem != "" {
		c.DEMPath = dem
	}
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		c.SecretKey = secret
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.MongoURI = uri
	}
	if db := os.Getenv("MONGO_DB"); db != "" {
		c.MongoDatabase = db
	}
	if userDB := os.Getenv("USER_DB"); userDB != "" {
		c.UserDB = userDB
	}
	if portStr := os.Getenv("LISTEN_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid LISTEN_PORT: %s", portStr)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ScanWorkers <= 0 {
		c.ScanWorkers = 4
	}
	if c.ScanStrategy == "" {
		c.ScanStrategy = "workers"
	}
	if c.TokenTTLMinutes <= 0 {
		c.TokenTTLMinutes = 60
	}
	if c.DEMPath == "" && c.DatahubRoot != "" {
		c.DEMPath = filepath.Join(c.DatahubRoot, "dem", "output_COP90_31287.tif")
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "wetterklima"
	}
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}
