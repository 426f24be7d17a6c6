package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tk102-ng/internal/server"
)

type Config struct {
	Listen ListenConfig `yaml:"listen"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Web    WebConfig    `yaml:"web"`
	Record RecordConfig `yaml:"record"`
	UDP    UDPConfig    `yaml:"udp"`
}

type ListenConfig struct {
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port"`
	Connections int    `yaml:"connections"`
	// TimeoutSeconds of 0 disables the idle watchdog; nil means the default.
	TimeoutSeconds *float64 `yaml:"timeout_seconds"`
}

type MQTTConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         int           `yaml:"qos"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
}

type WebConfig struct {
	Enable       bool   `yaml:"enable"`
	Listen       string `yaml:"listen"`
	RecentTracks int    `yaml:"recent_tracks"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// UDPConfig forwards each track as one datagram.
type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	// Format is "json" (default) or "raw".
	Format string `yaml:"format"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	if err := cfg.applyDefaults(); err != nil {
		// Defaults are always valid.
		panic(err)
	}
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			msg := stripLinePrefix(te.Errors)
			if strings.Contains(msg, " not found in type ") {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", msg)
			}
			return Config{}, fmt.Errorf("config: %s", msg)
		}
		return Config{}, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripLinePrefix drops yaml's "line N: " prefixes so messages are stable.
func stripLinePrefix(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return strings.Join(out, "; ")
}

func (cfg *Config) applyDefaults() error {
	l := &cfg.Listen
	l.IP = strings.TrimSpace(l.IP)
	if l.IP == "" {
		l.IP = server.DefaultBindAddress
	}
	if net.ParseIP(l.IP) == nil {
		return fmt.Errorf("listen.ip %q is not an IP address", l.IP)
	}
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("listen.port must be between 0 and 65535")
	}
	if l.Connections <= 0 {
		l.Connections = server.DefaultMaxConnections
	}
	if l.TimeoutSeconds == nil {
		v := server.DefaultIdleTimeout.Seconds()
		l.TimeoutSeconds = &v
	}
	if *l.TimeoutSeconds < 0 {
		return fmt.Errorf("listen.timeout_seconds must be >= 0")
	}

	m := &cfg.MQTT
	m.Broker = strings.TrimSpace(m.Broker)
	if m.Enable && m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if m.ClientID == "" {
		m.ClientID = "tk102d"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "tk102"
	}
	m.TopicPrefix = strings.TrimRight(m.TopicPrefix, "/")
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Second
	}

	w := &cfg.Web
	if w.Listen == "" {
		w.Listen = ":8080"
	}
	if w.RecentTracks <= 0 {
		w.RecentTracks = 100
	}

	r := &cfg.Record
	if r.Enable && strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}

	u := &cfg.UDP
	u.Dest = strings.TrimSpace(u.Dest)
	if u.Enable && u.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	u.Format = strings.ToLower(strings.TrimSpace(u.Format))
	if u.Format == "" {
		u.Format = "json"
	}
	if u.Format != "json" && u.Format != "raw" {
		return fmt.Errorf("udp.format must be json or raw")
	}
	return nil
}

// Settings converts the listen section for server.New.
func (l ListenConfig) Settings() server.Settings {
	s := server.DefaultSettings()
	if l.IP != "" {
		s.BindAddress = l.IP
	}
	s.Port = l.Port
	if l.Connections > 0 {
		s.MaxConnections = l.Connections
	}
	if l.TimeoutSeconds != nil {
		s.IdleTimeout = time.Duration(*l.TimeoutSeconds * float64(time.Second))
	}
	return s
}
