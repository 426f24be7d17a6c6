package mqttpub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tk102-ng/internal/server"
)

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Username    string
	Password    string
	// Timeout bounds the initial connect and each publish acknowledgement.
	Timeout time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is a server.Observer that forwards track, fail, timeout and error
// events to an MQTT broker as JSON.
//
// Topics:
//
//	<prefix>/track/<imei>   report
//	<prefix>/fail           parse failure
//	<prefix>/status         timeouts and socket errors
type Publisher struct {
	c       client
	prefix  string
	qos     byte
	timeout time.Duration
}

type FailMessage struct {
	At         string `json:"at"`
	Reason     string `json:"reason"`
	Input      string `json:"input"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

type StatusMessage struct {
	At         string `json:"at"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

func Connect(cfg Config) (*Publisher, error) {
	cfg.Broker = strings.TrimSpace(cfg.Broker)
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	log.Printf("mqtt: connected to %s", cfg.Broker)

	return newPublisher(c, cfg), nil
}

func newPublisher(c client, cfg Config) *Publisher {
	prefix := strings.TrimRight(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "tk102"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Publisher{c: c, prefix: prefix, qos: cfg.QoS, timeout: cfg.Timeout}
}

func (p *Publisher) OnEvent(ev server.Event) {
	if p == nil {
		return
	}
	topic, payload, ok := p.message(ev)
	if !ok {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("mqtt: marshal %s: %v", ev.Kind, err)
		return
	}
	token := p.c.Publish(topic, p.qos, false, b)
	go func() {
		if !token.WaitTimeout(p.timeout) {
			log.Printf("mqtt: publish %s: timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: publish %s: %v", topic, err)
		}
	}()
}

func (p *Publisher) message(ev server.Event) (string, any, bool) {
	at := ev.At.UTC().Format(time.RFC3339Nano)
	remote := ""
	if ev.Conn != nil {
		remote = ev.Conn.RemoteAddr
	}

	switch ev.Kind {
	case server.EventTrack:
		if ev.Report == nil {
			return "", nil, false
		}
		imei := ev.Report.IMEI
		if imei == "" {
			imei = "unknown"
		}
		return p.prefix + "/track/" + topicSafe(imei), ev.Report, true
	case server.EventFail:
		msg := FailMessage{At: at, RemoteAddr: remote}
		var perr *server.ParseError
		if errors.As(ev.Err, &perr) {
			msg.Reason = perr.Reason
			msg.Input = perr.Input
		} else if ev.Err != nil {
			msg.Reason = ev.Err.Error()
		}
		return p.prefix + "/fail", msg, true
	case server.EventTimeout, server.EventError:
		msg := StatusMessage{At: at, Kind: string(ev.Kind), RemoteAddr: remote}
		if ev.Err != nil {
			msg.Reason = ev.Err.Error()
		}
		return p.prefix + "/status", msg, true
	default:
		return "", nil, false
	}
}

// topicSafe replaces MQTT wildcard and level characters.
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

func (p *Publisher) Close() {
	if p == nil || p.c == nil {
		return
	}
	p.c.Disconnect(250)
}
