// Package generator implements the packet dispatch schedulers: the baseline
// pulsing scheduler and the deadline-convergence scheduler. Both run as
// engine tasks and emit packets through a Transport.
package generator

import (
	"math"

	"go.uber.org/zap"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/network"
)

// State is a generator's lifecycle stage
type State int8

const (
	Created State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Transport puts packets on paths. *network.Dispatcher implements it
type Transport interface {
	Dispatch(path *network.Path, pkt domain.Packet) float64
	DispatchPending(path *network.Path, pp domain.PendingPacket) float64
}

// SizeFunc draws a packet size
type SizeFunc func() int

// Options are shared by both generators
type Options struct {
	Src    string
	FlowID int
	// Finish stops emission once the clock reaches it. Zero means unbounded
	Finish float64
	Size   SizeFunc
	Logger *zap.Logger
}

func (o Options) finish() float64 {
	if o.Finish == 0 {
		return math.Inf(1)
	}
	return o.Finish
}

// emitter holds the bookkeeping common to both generators
type emitter struct {
	opts      Options
	transport Transport
	log       *zap.Logger

	state    State
	seq      uint64
	sends    []float64
	sentSize int
}

func newEmitter(t Transport, opts Options) emitter {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Size == nil {
		opts.Size = func() int { return 0 }
	}
	return emitter{opts: opts, transport: t, log: log}
}

func (e *emitter) packet(now float64) domain.Packet {
	pkt := domain.Packet{
		ID:           e.seq,
		Size:         e.opts.Size(),
		CreationTime: now,
		FlowID:       e.opts.FlowID,
		Src:          e.opts.Src,
	}
	e.seq++
	e.sends = append(e.sends, now)
	e.sentSize += pkt.Size
	return pkt
}

func (e *emitter) finishRun(reason string) {
	e.state = Done
	e.log.Debug("generator done",
		zap.String("src", e.opts.Src),
		zap.String("reason", reason),
		zap.Int("packets_sent", len(e.sends)))
}

// State returns the generator's lifecycle stage
func (e *emitter) State() State { return e.state }

// PacketsSent returns how many packets have been emitted
func (e *emitter) PacketsSent() int { return len(e.sends) }

// SentSize returns the total size of emitted packets
func (e *emitter) SentSize() int { return e.sentSize }

// Sends returns a copy of the emission timestamps
func (e *emitter) Sends() []float64 {
	out := make([]float64, len(e.sends))
	copy(out, e.sends)
	return out
}
