package mcl

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishedMessage records one Publish call made against the mock.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockClient is an in-memory mqtt.Client. Tests feed the filter by
// injecting odometry and scan payloads with SimulateMessage and assert
// on the outbox the publisher filled.
type MockClient struct {
	mu          sync.RWMutex
	connected   bool
	failPublish error
	routes      map[string]mqtt.MessageHandler
	outbox      []PublishedMessage
	onConnect   mqtt.OnConnectHandler
}

func NewMockClient() *MockClient {
	return &MockClient{routes: make(map[string]mqtt.MessageHandler)}
}

// SetConnected flips the connection state without going through Connect.
func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// SetPublishError makes every subsequent Publish fail with err.
func (c *MockClient) SetPublishError(err error) {
	c.mu.Lock()
	c.failPublish = err
	c.mu.Unlock()
}

// GetPublishedMessages returns a copy of everything published so far.
func (c *MockClient) GetPublishedMessages() []PublishedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PublishedMessage, len(c.outbox))
	copy(out, c.outbox)
	return out
}

// SimulateMessage delivers payload to the handler subscribed on topic.
// Topics nobody subscribed to are dropped, like a real broker would.
func (c *MockClient) SimulateMessage(topic string, payload []byte) {
	c.mu.RLock()
	handler := c.routes[topic]
	c.mu.RUnlock()

	if handler != nil {
		handler(c, &stubMessage{topic: topic, payload: payload})
	}
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

// Connect marks the client connected and fires the connect callback,
// mirroring paho's asynchronous resubscribe-on-connect flow.
func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()

	if cb != nil {
		go cb(c)
	}
	return doneToken(nil)
}

func (c *MockClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return doneToken(mqtt.ErrNotConnected)
	}
	if c.failPublish != nil {
		return doneToken(c.failPublish)
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}

	c.outbox = append(c.outbox, PublishedMessage{
		Topic:   topic,
		Payload: data,
		QoS:     qos,
		Retain:  retained,
	})
	return doneToken(nil)
}

func (c *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return doneToken(mqtt.ErrNotConnected)
	}
	c.routes[topic] = callback
	return doneToken(nil)
}

func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return doneToken(mqtt.ErrNotConnected)
	}
	for topic := range filters {
		c.routes[topic] = callback
	}
	return doneToken(nil)
}

func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.routes, topic)
	}
	return doneToken(nil)
}

func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	c.routes[topic] = callback
	c.mu.Unlock()
}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// stubToken is an mqtt.Token that completed before it was returned.
type stubToken struct {
	err error
}

func doneToken(err error) *stubToken { return &stubToken{err: err} }

func (t *stubToken) Wait() bool                       { return true }
func (t *stubToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *stubToken) Error() error                     { return t.err }
func (t *stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubMessage is the mqtt.Message SimulateMessage hands to handlers.
type stubMessage struct {
	topic   string
	payload []byte
}

func (m *stubMessage) Duplicate() bool     { return false }
func (m *stubMessage) Qos() byte           { return 0 }
func (m *stubMessage) Retained() bool      { return false }
func (m *stubMessage) Topic() string       { return m.topic }
func (m *stubMessage) MessageID() uint16   { return 0 }
func (m *stubMessage) Payload() []byte     { return m.payload }
func (m *stubMessage) Ack()                {}
func (m *stubMessage) AutoAckOff()         {}
func (m *stubMessage) AutoAckOn()          {}
func (m *stubMessage) SetAutoAck(bool)     {}
func (m *stubMessage) SetRetained(bool)    {}
func (m *stubMessage) SetQoS(byte)         {}
func (m *stubMessage) SetDuplicate(bool)   {}
func (m *stubMessage) SetMessageID(uint16) {}
