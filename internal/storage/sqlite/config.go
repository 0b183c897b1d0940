package sqlite

import (
	"fmt"
)

type Config struct {
	DatabasePath string `json:"database_path"`
}

func (c *Config) GetType() string { return "sqlite" }

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}
