// Package config loads optional YAML settings files and merges key=value
// CLI tokens over them.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Server holds flockd settings, file flockd.yaml.
type Server struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	MaxUsers    int    `yaml:"max_users,omitempty"`
	SendWorkers int    `yaml:"send_workers,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	LogFile     string `yaml:"log_file,omitempty"`
}

// DefaultServer is the zero-config server.
func DefaultServer() Server {
	return Server{
		Host:        "0.0.0.0",
		Port:        50600,
		MaxUsers:    30,
		SendWorkers: 200,
		LogLevel:    "info",
	}
}

// Client holds flock settings, file flock.yaml.
type Client struct {
	Host     string            `yaml:"host,omitempty"`
	Port     int               `yaml:"port,omitempty"`
	Timeout  float64           `yaml:"timeout,omitempty"` // bot pacing, seconds
	LogFile  string            `yaml:"log_file,omitempty"`
	LogLevel string            `yaml:"log_level,omitempty"`
	Colors   map[string]string `yaml:"colors,omitempty"` // preset per-target colors
}

// DefaultClient is the zero-config client.
func DefaultClient() Client {
	return Client{
		Host:     "localhost",
		Port:     50600,
		Timeout:  1.2,
		LogLevel: "info",
	}
}

// LoadServer reads path into a default-initialized Server. A missing file is
// not an error.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	err := loadYAML(path, &cfg)
	return cfg, err
}

// LoadClient reads path into a default-initialized Client.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	err := loadYAML(path, &cfg)
	return cfg, err
}

func loadYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Apply overrides cfg fields from key=value CLI tokens.
func (c *Server) Apply(opts map[string]string) error {
	if v, ok := opts["host"]; ok {
		c.Host = v
	}
	if v, ok := opts["port"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("port parse failed, expected integer: %q", v)
		}
		c.Port = p
	}
	if v, ok := opts["max_users"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("max_users parse failed, expected integer: %q", v)
		}
		c.MaxUsers = n
	}
	if v, ok := opts["log_level"]; ok {
		c.LogLevel = v
	}
	if v, ok := opts["log_file"]; ok {
		c.LogFile = v
	}
	return nil
}

// Apply overrides cfg fields from key=value CLI tokens.
func (c *Client) Apply(opts map[string]string) error {
	if v, ok := opts["host"]; ok {
		c.Host = v
	}
	if v, ok := opts["port"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("port parse failed, expected integer: %q", v)
		}
		c.Port = p
	}
	if v, ok := opts["timeout"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("timeout parse failed, expected number: %q", v)
		}
		c.Timeout = f
	}
	if v, ok := opts["log_level"]; ok {
		c.LogLevel = v
	}
	if v, ok := opts["log_file"]; ok {
		c.LogFile = v
	}
	return nil
}
