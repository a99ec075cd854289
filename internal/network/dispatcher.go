package network

import (
	"math/rand"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/latency"
)

// Scheduler is the slice of the event loop the dispatcher needs
type Scheduler interface {
	Now() float64
	ScheduleAt(at float64, action func())
}

// Receiver is the far end of every path
type Receiver interface {
	Receive(now float64, pkt domain.Packet)
}

// TransmissionCallback is called when a packet is handed to a path
type TransmissionCallback func(tx domain.Transmission)

// Dispatcher puts packets on paths and schedules their delivery
type Dispatcher struct {
	sched Scheduler
	rng   *rand.Rand
	out   Receiver

	// JitterOnSynced adds the path's own jitter on top of a pending
	// packet's explicit extra delay.
	JitterOnSynced bool
	OnTransmission TransmissionCallback

	dispatched map[int]int // flow id -> packets
}

// NewDispatcher binds a dispatcher to a clock, a random stream and a receiver
func NewDispatcher(sched Scheduler, rng *rand.Rand, out Receiver) *Dispatcher {
	return &Dispatcher{
		sched:      sched,
		rng:        rng,
		out:        out,
		dispatched: make(map[int]int),
	}
}

// Dispatch sends pkt over path now. The transit time is a fresh draw from
// Normal(latency, sigma), floored at zero. Returns the scheduled arrival.
func (d *Dispatcher) Dispatch(path *Path, pkt domain.Packet) float64 {
	transit := path.Latency() + latency.Jitter(d.rng, path.JitterSigma())
	return d.deliver(path, pkt, transit, 0, false)
}

// DispatchPending sends a packet whose extra delay was planned in advance.
// Transit is latency + extra delay, plus jitter only if JitterOnSynced.
func (d *Dispatcher) DispatchPending(path *Path, pp domain.PendingPacket) float64 {
	transit := path.Latency() + pp.ExtraDelay
	if d.JitterOnSynced {
		transit += latency.Jitter(d.rng, path.JitterSigma())
	}
	return d.deliver(path, pp.Packet, transit, pp.ExtraDelay, true)
}

func (d *Dispatcher) deliver(path *Path, pkt domain.Packet, transit, extra float64, synced bool) float64 {
	if transit < 0 {
		transit = 0
	}
	now := d.sched.Now()
	arrival := now + transit
	d.dispatched[pkt.FlowID]++

	if d.OnTransmission != nil {
		d.OnTransmission(domain.Transmission{
			Packet:      pkt,
			PathID:      path.ID,
			PathLatency: path.Latency(),
			SentTime:    now,
			ArrivalTime: arrival,
			ExtraDelay:  extra,
			Synced:      synced,
		})
	}

	out := d.out
	d.sched.ScheduleAt(arrival, func() {
		out.Receive(arrival, pkt)
	})
	return arrival
}

// Dispatched returns how many packets of a flow have been put on paths
func (d *Dispatcher) Dispatched(flowID int) int {
	return d.dispatched[flowID]
}
