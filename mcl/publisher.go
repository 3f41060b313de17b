package mcl

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// EstimateMessage is the wire format of a published pose estimate.
type EstimateMessage struct {
	HypothesisID int     `json:"hypothesisId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Yaw          float64 `json:"yaw"`
	SpreadXY     float64 `json:"spreadXY"`
	SpreadYaw    float64 `json:"spreadYaw"`
	Quality      float64 `json:"quality"`
	Diverged     bool    `json:"diverged"`
	Timestamp    int64   `json:"timestamp"` // unix milliseconds
}

// Publisher publishes pose estimates and particle-cloud markers to MQTT.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	lastEstimate  *EstimateMessage
	mu            sync.RWMutex
}

// NewPublisher creates a new estimate publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "gridloc"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for estimates (fire and forget)
		retain:        true, // Retain for latest estimate
	}
}

// PublishEstimate publishes the current best hypothesis to
// {prefix}/estimate.
func (p *Publisher) PublishEstimate(status HypothesisStatus) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &EstimateMessage{
		HypothesisID: status.ID,
		X:            status.Estimate.Pose.Translation.X,
		Y:            status.Estimate.Pose.Translation.Y,
		Yaw:          status.Estimate.Pose.Yaw(),
		SpreadXY:     status.Estimate.SpreadXY,
		SpreadYaw:    status.Estimate.SpreadYaw,
		Quality:      status.Quality,
		Diverged:     status.Diverged,
		Timestamp:    time.Now().UnixMilli(),
	}

	p.mu.Lock()
	p.lastEstimate = msg
	p.mu.Unlock()

	topic := fmt.Sprintf("%s/estimate", p.publishPrefix)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling estimate: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published estimate: (%.2f, %.2f) yaw=%.2f quality=%.4f",
		msg.X, msg.Y, msg.Yaw, msg.Quality)
	return nil
}

// PublishParticles publishes the particle cloud of one hypothesis as
// arrow markers to {prefix}/particles. Particle clouds are transient, so
// they are never retained regardless of the retain setting.
func (p *Publisher) PublishParticles(hypothesisID int, particles []Particle) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	markers := BuildParticleMarkers(particles, HypothesisColor(hypothesisID), time.Now())

	topic := fmt.Sprintf("%s/particles", p.publishPrefix)

	message := map[string]interface{}{
		"hypothesisId": hypothesisID,
		"markers":      markers,
		"timestamp":    time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling particle markers: %w", err)
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// LastEstimate returns the most recently published estimate, or false
// when nothing has been published yet.
func (p *Publisher) LastEstimate() (*EstimateMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastEstimate == nil {
		return nil, false
	}
	copy := *p.lastEstimate
	return &copy, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published estimates should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
