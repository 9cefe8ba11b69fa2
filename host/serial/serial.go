// Package serial opens the link to the drive controller.
package serial

import (
	"io"
)

// Port is the byte stream to the drive. Tests substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `mapstructure:"device" yaml:"device"`

	// Baud rate; USB CDC ignores it
	Baud int `mapstructure:"baud" yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
}

// DefaultConfig returns the settings used by the drive firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}
