package tofgen

import (
	"fmt"

	"github.com/tofgen/tofgen/pkg/logger"
)

type Config struct {
	LoggerConfig logger.Config

	// From CLI flags
	RequestPath string
	DeviceAddr  string
	DeviceID    uint64
	ElectionID  uint64
	Tofino2     bool
}

func (c *Config) Validate() error {
	if c.RequestPath == "" {
		return fmt.Errorf("request file is required")
	}
	if c.DeviceID == 0 {
		return fmt.Errorf("device id must be positive")
	}
	if c.ElectionID == 0 {
		return fmt.Errorf("election id must be positive")
	}
	return nil
}

// validateDevice is the extra requirement of the commands that talk to
// the switch.
func (c *Config) validateDevice() error {
	if c.DeviceAddr == "" {
		return fmt.Errorf("device address is required")
	}
	return nil
}
