// Package telemetry publishes drive reports to an MQTT broker as JSON.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"gofoc/host/link"
)

var ErrPublishTimeout = errors.New("telemetry: publish not confirmed")

// Config locates the broker and the topic tree
type Config struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Broker   string        `mapstructure:"broker" yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID string        `mapstructure:"client_id" yaml:"client_id"`
	Topic    string        `mapstructure:"topic" yaml:"topic"` // prefix; reports go to <topic>/status etc.
	QoS      byte          `mapstructure:"qos" yaml:"qos"`
	Retain   bool          `mapstructure:"retain" yaml:"retain"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig publishes to a local broker with QoS 0
func DefaultConfig() Config {
	return Config{
		Broker:   "tcp://localhost:1883",
		ClientID: "foc-host",
		Topic:    "foc/drive0",
		Timeout:  2 * time.Second,
	}
}

// Client is the part of mqtt.Client the publisher uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends decoded drive reports to the broker
type Publisher struct {
	client Client
	cfg    Config
	log    *zap.Logger
}

// Connect dials the broker in cfg. The client reconnects on its own after
// the first successful connection.
func Connect(cfg Config, log *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to MQTT broker", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return NewPublisher(client, cfg, log), nil
}

// NewPublisher wraps an already connected client
func NewPublisher(client Client, cfg Config, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Publisher{client: client, cfg: cfg, log: log}
}

// StatusMessage is the JSON form of a status report
type StatusMessage struct {
	link.Status
	Time  time.Time `json:"time"`
	State string    `json:"state"`
	Flags string    `json:"flags"`
	Code  uint16    `json:"status"`
}

// PublishStatus sends s to <topic>/status
func (p *Publisher) PublishStatus(s link.Status) error {
	return p.publish("status", StatusMessage{
		Status: s,
		Time:   time.Now().UTC(),
		State:  s.State.String(),
		Flags:  s.Flags.String(),
		Code:   uint16(s.Flags),
	})
}

// PublishBus sends b to <topic>/bus
func (p *Publisher) PublishBus(b link.BusVoltage) error {
	return p.publish("bus", struct {
		link.BusVoltage
		Time time.Time `json:"time"`
	}{b, time.Now().UTC()})
}

// EventMessage is a discrete drive event such as a shutdown
type EventMessage struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
	Clock  uint32    `json:"clock"`
	Detail string    `json:"detail,omitempty"`
}

// PublishEvent sends e to <topic>/event
func (p *Publisher) PublishEvent(e EventMessage) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return p.publish("event", e)
}

func (p *Publisher) publish(sub string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := p.cfg.Topic + "/" + sub
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	p.log.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
