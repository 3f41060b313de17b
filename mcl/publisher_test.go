package mcl

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleStatus() HypothesisStatus {
	return HypothesisStatus{
		ID: 2,
		Estimate: PoseEstimate{
			Pose:      FromXYYaw(1.5, -0.5, 0.3),
			SpreadXY:  0.12,
			SpreadYaw: 0.05,
		},
		Quality:   4.2,
		UpdatedAt: time.Now(),
	}
}

func TestPublisher_PublishEstimate(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	p := NewPublisher(mock)
	if err := p.PublishEstimate(sampleStatus()); err != nil {
		t.Fatalf("PublishEstimate failed: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}

	msg := msgs[0]
	if msg.Topic != "gridloc/estimate" {
		t.Errorf("topic = %s, want gridloc/estimate", msg.Topic)
	}
	if !msg.Retain {
		t.Error("estimates should be retained")
	}

	var est EstimateMessage
	if err := json.Unmarshal(msg.Payload, &est); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if est.HypothesisID != 2 {
		t.Errorf("HypothesisID = %d, want 2", est.HypothesisID)
	}
	if !nearlyEqual(est.X, 1.5) || !nearlyEqual(est.Y, -0.5) {
		t.Errorf("pose = (%g, %g), want (1.5, -0.5)", est.X, est.Y)
	}
	if !nearlyEqual(est.Quality, 4.2) {
		t.Errorf("quality = %g, want 4.2", est.Quality)
	}

	last, ok := p.LastEstimate()
	if !ok {
		t.Fatal("LastEstimate should be set after publishing")
	}
	if last.HypothesisID != 2 {
		t.Errorf("LastEstimate.HypothesisID = %d, want 2", last.HypothesisID)
	}
}

func TestPublisher_PublishEstimate_NotConnected(t *testing.T) {
	mock := NewMockClient()

	p := NewPublisher(mock)
	if err := p.PublishEstimate(sampleStatus()); err == nil {
		t.Error("expected error when not connected")
	}

	if _, ok := p.LastEstimate(); ok {
		t.Error("LastEstimate should be empty after a failed publish")
	}
}

func TestPublisher_PublishEstimate_NilClient(t *testing.T) {
	p := NewPublisher(nil)
	if err := p.PublishEstimate(sampleStatus()); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestPublisher_PublishEstimate_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker rejected"))

	p := NewPublisher(mock)
	if err := p.PublishEstimate(sampleStatus()); err == nil {
		t.Error("expected publish error to propagate")
	}
}

func TestPublisher_PublishParticles(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	particles := []Particle{
		{Pose: FromXYYaw(1, 0, 0), Weight: 0.5},
		{Pose: FromXYYaw(2, 0, 0), Weight: 0.5},
	}

	p := NewPublisher(mock)
	if err := p.PublishParticles(3, particles); err != nil {
		t.Fatalf("PublishParticles failed: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}

	msg := msgs[0]
	if msg.Topic != "gridloc/particles" {
		t.Errorf("topic = %s, want gridloc/particles", msg.Topic)
	}
	if msg.Retain {
		t.Error("particle clouds must not be retained")
	}

	var payload struct {
		HypothesisID int      `json:"hypothesisId"`
		Markers      []Marker `json:"markers"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.HypothesisID != 3 {
		t.Errorf("hypothesisId = %d, want 3", payload.HypothesisID)
	}
	if len(payload.Markers) != 2 {
		t.Errorf("markers = %d, want 2", len(payload.Markers))
	}
}

func TestPublisher_PrefixFromEnv(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "custom/prefix")

	mock := NewMockClient()
	mock.SetConnected(true)

	p := NewPublisher(mock)
	if err := p.PublishEstimate(sampleStatus()); err != nil {
		t.Fatalf("PublishEstimate failed: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if msgs[0].Topic != "custom/prefix/estimate" {
		t.Errorf("topic = %s, want custom/prefix/estimate", msgs[0].Topic)
	}
}

func TestPublisher_SetQoS(t *testing.T) {
	p := NewPublisher(nil)

	p.SetQoS(1)
	if p.qos != 1 {
		t.Errorf("qos = %d, want 1", p.qos)
	}

	p.SetQoS(5) // invalid, ignored
	if p.qos != 1 {
		t.Errorf("qos = %d after invalid set, want 1", p.qos)
	}
}

func TestPublisher_SetRetain(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	p := NewPublisher(mock)
	p.SetRetain(false)

	if err := p.PublishEstimate(sampleStatus()); err != nil {
		t.Fatalf("PublishEstimate failed: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if msgs[0].Retain {
		t.Error("retain should be disabled")
	}
}
