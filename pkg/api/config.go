package api

import "errors"

// Define static errors
var (
	ErrAddrRequired = errors.New("listen address is required")
)

// Config holds the listen addresses of the four component APIs
type Config struct {
	RouterAddr    string `yaml:"routerAddr" default:":8080"`
	MetadataAddr  string `yaml:"metadataAddr" default:":8081"`
	MigrationAddr string `yaml:"migrationAddr" default:":8082"`
	CleanerAddr   string `yaml:"cleanerAddr" default:":8083"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RouterAddr == "" || c.MetadataAddr == "" || c.MigrationAddr == "" || c.CleanerAddr == "" {
		return ErrAddrRequired
	}

	return nil
}
