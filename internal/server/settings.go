package server

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultBindAddress    = "0.0.0.0"
	DefaultMaxConnections = 10
	DefaultIdleTimeout    = 10 * time.Second
)

// Settings is fixed once the Listener starts. Sessions get a copy.
type Settings struct {
	BindAddress    string        `json:"ip"`
	Port           int           `json:"port"`
	MaxConnections int           `json:"connections"`
	IdleTimeout    time.Duration `json:"timeout"`
}

func DefaultSettings() Settings {
	return Settings{
		BindAddress:    DefaultBindAddress,
		Port:           0,
		MaxConnections: DefaultMaxConnections,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Addr returns the host:port to bind.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.Port))
}

func (s Settings) validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be > 0")
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must be >= 0")
	}
	return nil
}
