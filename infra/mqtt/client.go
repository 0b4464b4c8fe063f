// Package mqtt implements the bus.Bus transport on Eclipse Paho. One client
// serves either side of the system: the simulator publishing telemetry and
// the supervisory service publishing commands.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	QoS        byte   `json:"qos"`
	MaxRetries int    `json:"max_retries"`
	BackoffMS  int    `json:"backoff_ms"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults fills the connection parameters a config file may omit. The
// client id gets a random suffix so several processes can share a config.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://127.0.0.1:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "minefleet"
	}
	c.ClientID = fmt.Sprintf("%s-%s", c.ClientID, uuid.NewString()[:8])
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// pahoClient is the slice of the Paho API the bus uses, extracted so tests
// can substitute a fake.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoBus implements bus.Bus over an MQTT broker connection. Subscriptions
// are remembered and replayed after a reconnect.
type PahoBus struct {
	cli        pahoClient
	log        logger.Logger
	qos        byte
	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	subs map[string]bus.Handler
}

// NewPahoBus connects to the broker. Connection failure at startup is
// fatal; everything after that reconnects on its own.
func NewPahoBus(cfg Config, log logger.Logger) (*PahoBus, error) {
	opts, err := newClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	b := &PahoBus{
		log:        log,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		subs:       make(map[string]bus.Handler),
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("mqtt connected to %s", cfg.Broker)
		b.resubscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("mqtt connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to mqtt broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	b.cli = c
	return b, nil
}

func newClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// resubscribe replays every known subscription on a fresh connection.
func (b *PahoBus) resubscribe(c pahoClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, h := range b.subs {
		h := h
		if token := c.Subscribe(topic, b.qos, func(_ paho.Client, msg paho.Message) {
			h(msg.Topic(), msg.Payload())
		}); token.Wait() && token.Error() != nil {
			b.log.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

// Publish sends the payload, retrying with exponential backoff. The last
// error is returned when every attempt fails.
func (b *PahoBus) Publish(topic string, payload []byte) error {
	if b.cli == nil || !b.cli.IsConnected() {
		return bus.ErrNotConnected
	}
	var publishErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		token := b.cli.Publish(topic, b.qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		b.log.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		time.Sleep(b.backoff * time.Duration(1<<attempt))
	}
	return fmt.Errorf("mqtt publish %s: %w", topic, publishErr)
}

// Subscribe registers the handler and remembers the topic for replay after
// a reconnect.
func (b *PahoBus) Subscribe(topic string, h bus.Handler) error {
	b.mu.Lock()
	b.subs[topic] = h
	b.mu.Unlock()

	token := b.cli.Subscribe(topic, b.qos, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (b *PahoBus) Close() {
	if b.cli != nil && b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}
