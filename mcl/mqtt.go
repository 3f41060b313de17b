package mcl

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// OdometryHandler is called with the planar displacement the robot
// reported since its previous odometry message.
type OdometryHandler func(displacement Transform, stamp time.Time)

// ScanHandler is called with each decoded laser scan.
type ScanHandler func(scan *LaserScan)

// MQTTClient manages the MQTT connection and the odometry/scan
// subscriptions that drive the filter.
type MQTTClient struct {
	client      mqtt.Client
	config      *MQTTConfig
	odomHandler OdometryHandler
	scanHandler ScanHandler
	isConnected bool
	mu          sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided
// configuration. If neither the MQTT_BROKER env var nor config.Broker is
// set, MQTT is disabled and this returns nil.
func InitMQTT(config *MQTTConfig, odomHandler OdometryHandler, scanHandler ScanHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.Broker != "" {
		broker = config.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || config.OdometryTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no odometry topic configured")
	}

	client := &MQTTClient{
		config:      config,
		odomHandler: odomHandler,
		scanHandler: scanHandler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.ClientID != "" {
		clientID = config.ClientID
	}
	if clientID == "" {
		clientID = "gridloc"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.Username != "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.Password != "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	// Scans must be applied in arrival order or the filter drifts.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the odometry and scan topics.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to sensor topics...")
	c.setConnected(true)

	subscribe := func(topic string, handler mqtt.MessageHandler) {
		if topic == "" {
			return
		}
		log.Printf("Subscribing to %s", topic)
		token := client.Subscribe(topic, 0, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", topic)
		}
	}

	subscribe(c.config.OdometryTopic, c.handleOdometry)
	subscribe(c.config.ScanTopic, c.handleScan)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// odometryPayload is the wire format of one odometry message: the planar
// displacement since the previous message, not an absolute pose.
type odometryPayload struct {
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	DYaw      float64 `json:"dyaw"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// scanPayload is the wire format of one laser scan.
type scanPayload struct {
	Ranges         []*float64 `json:"ranges"` // null entries are dropped returns
	AngleMin       float64    `json:"angleMin"`
	AngleIncrement float64    `json:"angleIncrement"`
	Frame          string     `json:"frame"`
	Timestamp      int64      `json:"timestamp"` // unix milliseconds
}

// DecodeOdometry parses an odometry payload into a displacement transform.
func DecodeOdometry(payload []byte) (Transform, time.Time, error) {
	var msg odometryPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return IdentityTransform(), time.Time{}, fmt.Errorf("decoding odometry: %w", err)
	}
	return FromXYYaw(msg.DX, msg.DY, msg.DYaw), time.UnixMilli(msg.Timestamp), nil
}

// DecodeScan parses a scan payload. JSON cannot carry NaN, so dropped
// returns arrive as nulls and are converted back to NaN here.
func DecodeScan(payload []byte) (*LaserScan, error) {
	var msg scanPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decoding scan: %w", err)
	}
	if len(msg.Ranges) == 0 {
		return nil, fmt.Errorf("scan has no ranges")
	}

	ranges := make([]float64, len(msg.Ranges))
	for i, r := range msg.Ranges {
		if r == nil {
			ranges[i] = math.NaN()
		} else {
			ranges[i] = *r
		}
	}

	frame := msg.Frame
	if frame == "" {
		frame = "laser"
	}

	return &LaserScan{
		Ranges:         ranges,
		AngleMin:       msg.AngleMin,
		AngleIncrement: msg.AngleIncrement,
		Frame:          frame,
		Stamp:          time.UnixMilli(msg.Timestamp),
	}, nil
}

// handleOdometry decodes an odometry message and forwards it.
func (c *MQTTClient) handleOdometry(client mqtt.Client, msg mqtt.Message) {
	displacement, stamp, err := DecodeOdometry(msg.Payload())
	if err != nil {
		log.Printf("Error decoding odometry (topic: %s): %v", msg.Topic(), err)
		return
	}
	if c.odomHandler != nil {
		c.odomHandler(displacement, stamp)
	}
}

// handleScan decodes a scan message and forwards it.
func (c *MQTTClient) handleScan(client mqtt.Client, msg mqtt.Message) {
	scan, err := DecodeScan(msg.Payload())
	if err != nil {
		log.Printf("Error decoding scan (topic: %s): %v", msg.Topic(), err)
		return
	}
	if c.scanHandler != nil {
		c.scanHandler(scan)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *MQTTConfig, odomHandler OdometryHandler, scanHandler ScanHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		odomHandler: odomHandler,
		scanHandler: scanHandler,
	}
}
