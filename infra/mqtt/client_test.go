package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/minefleet/core/bus"
	"github.com/minefleet/minefleet/core/logger"
)

type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockClient struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
	published    []string
	subscribed   []string
	failPublish  int
	handlers     map[string]paho.MessageHandler
}

func (m *mockClient) IsConnected() bool { return m.connected }
func (m *mockClient) Connect() paho.Token {
	m.connected = true
	return &mockToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }

func (m *mockClient) Publish(topic string, _ byte, _ bool, _ interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish > 0 {
		m.failPublish--
		return &mockToken{err: errors.New("broker unavailable")}
	}
	m.published = append(m.published, topic)
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = cb
	return &mockToken{}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

func newTestBus(mc *mockClient) *PahoBus {
	return &PahoBus{
		cli:        mc,
		log:        logger.Nop{},
		maxRetries: 2,
		backoff:    time.Millisecond,
		subs:       make(map[string]bus.Handler),
	}
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.Broker)
	assert.Contains(t, cfg.ClientID, "minefleet-")
	assert.Equal(t, 3, cfg.MaxRetries)

	other := Config{ClientID: "minefleet"}
	other.SetDefaults()
	assert.NotEqual(t, cfg.ClientID, other.ClientID, "client ids must not collide")
}

func TestLoadTLSConfigRequiresPaths(t *testing.T) {
	_, err := Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	mc := &mockClient{connected: true, failPublish: 2}
	b := newTestBus(mc)

	require.NoError(t, b.Publish("truck/1/sensors", []byte("{}")))
	assert.Equal(t, []string{"truck/1/sensors"}, mc.published)
}

func TestPublishGivesUpAfterRetries(t *testing.T) {
	mc := &mockClient{connected: true, failPublish: 10}
	b := newTestBus(mc)

	err := b.Publish("truck/1/sensors", []byte("{}"))
	require.Error(t, err)
	assert.Empty(t, mc.published)
}

func TestPublishWhileDisconnected(t *testing.T) {
	b := newTestBus(&mockClient{connected: false})
	assert.ErrorIs(t, b.Publish("truck/1/sensors", nil), bus.ErrNotConnected)
}

func TestSubscribeDeliversToHandler(t *testing.T) {
	mc := &mockClient{connected: true}
	b := newTestBus(mc)

	var gotTopic string
	var gotPayload []byte
	require.NoError(t, b.Subscribe("truck/+/commands", func(topic string, payload []byte) {
		gotTopic = topic
		gotPayload = payload
	}))
	require.Contains(t, mc.handlers, "truck/+/commands")

	mc.handlers["truck/+/commands"](nil, mockMessage{topic: "truck/3/commands", payload: []byte(`{"rearm":true}`)})
	assert.Equal(t, "truck/3/commands", gotTopic)
	assert.JSONEq(t, `{"rearm":true}`, string(gotPayload))
}

func TestResubscribeReplaysSubscriptions(t *testing.T) {
	mc := &mockClient{connected: true}
	b := newTestBus(mc)
	require.NoError(t, b.Subscribe("truck/1/commands", func(string, []byte) {}))
	require.NoError(t, b.Subscribe("truck/1/setpoint", func(string, []byte) {}))

	fresh := &mockClient{connected: true}
	b.resubscribe(fresh)
	assert.ElementsMatch(t, []string{"truck/1/commands", "truck/1/setpoint"}, fresh.subscribed)
}

func TestCloseDisconnects(t *testing.T) {
	mc := &mockClient{connected: true}
	b := newTestBus(mc)
	b.Close()
	assert.True(t, mc.disconnected)
}
