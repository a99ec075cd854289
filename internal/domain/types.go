// Package domain defines the core types used across the simulation:
// packets, send plans, transmissions, events, and the run's output artifact
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// --- Errors ---

var (
	// ErrInvalidConfig is wrapped by every configuration rejection
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSamplingExhausted is returned when a truncated sampler rejects
	// too many consecutive draws.
	ErrSamplingExhausted = errors.New("sampling exhausted")
)

// --- Enums ---

type EventType int8

const (
	EventSimStart EventType = iota
	EventPacketSent
	EventPacketArrived
	EventSimEnd
)

func (e EventType) String() string {
	switch e {
	case EventSimStart:
		return "SIM_START"
	case EventPacketSent:
		return "PACKET_SENT"
	case EventPacketArrived:
		return "PACKET_ARRIVED"
	case EventSimEnd:
		return "SIM_END"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes EventType as a human-readable string
func (e EventType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// UnmarshalJSON deserializes EventType from a string or integer
func (e *EventType) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "SIM_START", "0":
		*e = EventSimStart
	case "PACKET_SENT", "1":
		*e = EventPacketSent
	case "PACKET_ARRIVED", "2":
		*e = EventPacketArrived
	case "SIM_END", "3":
		*e = EventSimEnd
	default:
		return fmt.Errorf("unknown EventType: %s", str)
	}
	return nil
}

// --- Core structures ---

// Packet is a single unit of traffic emitted by a generator
type Packet struct {
	ID           uint64  `json:"id"` // monotonic per generator
	Size         int     `json:"size"`
	CreationTime float64 `json:"creation_time"`
	FlowID       int     `json:"flow_id"`
	Src          string  `json:"src"`
}

// PendingPacket carries an explicit extra delay that, together with the
// path's nominal latency, fixes the packet's transit time
type PendingPacket struct {
	Packet
	ExtraDelay float64 `json:"extra_delay"`
}

// Transmission describes one packet handed to a path
type Transmission struct {
	Packet      Packet  `json:"packet"`
	PathID      int     `json:"path_id"`
	PathLatency float64 `json:"path_latency"`
	SentTime    float64 `json:"sent_time"`
	ArrivalTime float64 `json:"arrival_time"`
	ExtraDelay  float64 `json:"extra_delay,omitempty"`
	Synced      bool    `json:"synced,omitempty"`
}

// Event is the unit written to the event log
type Event struct {
	SeqNo     uint64    `json:"seq_no"`
	Timestamp float64   `json:"timestamp"`
	Type      EventType `json:"type"`

	// Set for packet events
	Packet      *Packet `json:"packet,omitempty"`
	Key         string  `json:"key,omitempty"` // sink key for arrivals
	PathID      int     `json:"path_id,omitempty"`
	PathLatency float64 `json:"path_latency,omitempty"`
	ExtraDelay  float64 `json:"extra_delay,omitempty"`
	Synced      bool    `json:"synced,omitempty"`
}

// SimulateResult is the artifact a run hands to analysis and storage
type SimulateResult struct {
	Sends    []float64 `json:"sends"`
	Recvs    []float64 `json:"recvs"`
	Sigma    float64   `json:"sigma"`
	Layers   int       `json:"layers"`
	MaxDelay float64   `json:"max_delay"`
}
