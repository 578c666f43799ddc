// Package transport sends slot telemetry upstream over MQTT.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/slotstore"
)

// DefaultTopic is the topic prefix telemetry is published under.
const DefaultTopic = "copilot/telemetry"

// DefaultSendTimeout bounds a publish when the slot imposes no cutoff.
const DefaultSendTimeout = 5 * time.Second

const (
	KindRegular = "regular"
	KindBasic   = "basic"
	KindCustom  = "custom"
)

var ErrNoMessage = errors.New("no message for slot")

// Publisher publishes payloads to a broker.
type Publisher interface {
	Publish(topic string, payload []byte, timeout time.Duration) error
	Close() error
}

// Messages yields the message a slot's script last built.
type Messages interface {
	LastMessage(slot string) (*slotstore.Message, bool)
}

// Payload is the JSON body of every telemetry message.
type Payload struct {
	Kind   string             `json:"kind"`
	Slot   string             `json:"slot,omitempty"`
	SentAt string             `json:"sentAt"`
	Fix    *gps.Fix           `json:"fix,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// Telemetry builds payloads and hands them to a Publisher.
type Telemetry struct {
	pub   Publisher
	topic string
	msgs  Messages
	// lastFix supplies the fix regular telemetry reports.
	lastFix func() (gps.Fix, bool)
	now     func() time.Time
}

// New returns a Telemetry publishing under topic.
func New(pub Publisher, topic string, msgs Messages, lastFix func() (gps.Fix, bool)) *Telemetry {
	if topic == "" {
		topic = DefaultTopic
	}
	if lastFix == nil {
		lastFix = func() (gps.Fix, bool) { return gps.Fix{}, false }
	}
	return &Telemetry{pub: pub, topic: topic, msgs: msgs, lastFix: lastFix, now: time.Now}
}

// SendRegularTelemetry publishes time and position from the last fix.
func (t *Telemetry) SendRegularTelemetry(quitAfterMs uint32) error {
	p := t.payload(KindRegular, "")
	if fix, ok := t.lastFix(); ok {
		p.Fix = &fix
	}
	return t.send(p, quitAfterMs)
}

// SendBasicTelemetry publishes a bare heartbeat.
func (t *Telemetry) SendBasicTelemetry(quitAfterMs uint32) error {
	return t.send(t.payload(KindBasic, ""), quitAfterMs)
}

// SendCustomMessage publishes the decoded values slot's script set.
func (t *Telemetry) SendCustomMessage(slot string, quitAfterMs uint32) error {
	m, ok := t.msgs.LastMessage(slot)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoMessage, slot)
	}
	p := t.payload(KindCustom, slot)
	p.Values = m.Values()
	return t.send(p, quitAfterMs)
}

func (t *Telemetry) payload(kind, slot string) Payload {
	return Payload{Kind: kind, Slot: slot, SentAt: t.now().UTC().Format(time.RFC3339Nano)}
}

func (t *Telemetry) send(p Payload, quitAfterMs uint32) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	timeout := DefaultSendTimeout
	if quitAfterMs > 0 {
		timeout = time.Duration(quitAfterMs) * time.Millisecond
	}
	return t.pub.Publish(t.topic+"/"+p.Kind, body, timeout)
}

// Close closes the publisher.
func (t *Telemetry) Close() error {
	return t.pub.Close()
}
