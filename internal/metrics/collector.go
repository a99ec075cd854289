// Package metrics computes per-flow send and arrival statistics
// from the event log.
package metrics

import (
	"io"
	"math"
	"sort"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/eventlog"
)

// DefaultWindow is the histogram bin width used for peak rates
const DefaultWindow = 10.0

// FlowMetrics holds computed metrics for one sink key
type FlowMetrics struct {
	Key string `json:"key"`

	// Counts
	PacketsSent    int `json:"packets_sent"`
	PacketsArrived int `json:"packets_arrived"`
	SyncedPackets  int `json:"synced_packets"`

	// Spans
	FirstSend    float64 `json:"first_send"`
	LastSend     float64 `json:"last_send"`
	FirstArrival float64 `json:"first_arrival"`
	LastArrival  float64 `json:"last_arrival"`
	SendSpan     float64 `json:"send_span"`
	ArrivalSpan  float64 `json:"arrival_span"`

	// Burstiness: packets in the busiest window of Window time units
	Window                float64 `json:"window"`
	PeakSendsPerWindow    int     `json:"peak_sends_per_window"`
	PeakArrivalsPerWindow int     `json:"peak_arrivals_per_window"`
	Magnification         float64 `json:"magnification"` // peak arrivals / peak sends

	// Delay
	MeanTransit    float64 `json:"mean_transit"`
	StdDevArrival  float64 `json:"stddev_arrival"`
	MeanExtraDelay float64 `json:"mean_extra_delay"`

	// Raw data for plotting, sorted ascending
	SendTimes    []float64 `json:"send_times,omitempty"`
	ArrivalTimes []float64 `json:"arrival_times,omitempty"`
}

// Collector accumulates metrics from events
type Collector struct {
	window float64
	flows  map[string]*flowAccum
	order  []string
}

type flowAccum struct {
	key        string
	sends      []float64
	arrivals   []float64
	sentAt     map[uint64]float64 // packet id -> send time
	transits   []float64
	extraTotal float64
	synced     int
}

// NewCollector creates a collector with the given peak-rate window
func NewCollector(window float64) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{
		window: window,
		flows:  make(map[string]*flowAccum),
	}
}

func (c *Collector) getAccum(key string) *flowAccum {
	if a, ok := c.flows[key]; ok {
		return a
	}
	a := &flowAccum{
		key:    key,
		sentAt: make(map[uint64]float64),
	}
	c.flows[key] = a
	c.order = append(c.order, key)
	return a
}

// ProcessEvent ingests a single event
func (c *Collector) ProcessEvent(event *domain.Event) {
	if event.Packet == nil {
		return
	}
	switch event.Type {
	case domain.EventPacketSent:
		a := c.getAccum(event.Key)
		a.sends = append(a.sends, event.Timestamp)
		a.sentAt[event.Packet.ID] = event.Timestamp
		if event.Synced {
			a.synced++
			a.extraTotal += event.ExtraDelay
		}
	case domain.EventPacketArrived:
		a := c.getAccum(event.Key)
		a.arrivals = append(a.arrivals, event.Timestamp)
		if sent, ok := a.sentAt[event.Packet.ID]; ok {
			a.transits = append(a.transits, event.Timestamp-sent)
		}
	}
}

// Compute calculates final metrics for all tracked flows
func (c *Collector) Compute() map[string]*FlowMetrics {
	result := make(map[string]*FlowMetrics)

	for _, key := range c.order {
		a := c.flows[key]
		m := &FlowMetrics{
			Key:            key,
			PacketsSent:    len(a.sends),
			PacketsArrived: len(a.arrivals),
			SyncedPackets:  a.synced,
			Window:         c.window,
		}

		m.SendTimes = sortedCopy(a.sends)
		m.ArrivalTimes = sortedCopy(a.arrivals)

		if n := len(m.SendTimes); n > 0 {
			m.FirstSend = m.SendTimes[0]
			m.LastSend = m.SendTimes[n-1]
			m.SendSpan = m.LastSend - m.FirstSend
		}
		if n := len(m.ArrivalTimes); n > 0 {
			m.FirstArrival = m.ArrivalTimes[0]
			m.LastArrival = m.ArrivalTimes[n-1]
			m.ArrivalSpan = m.LastArrival - m.FirstArrival
			m.StdDevArrival = stddev(m.ArrivalTimes)
		}

		m.PeakSendsPerWindow = PeakPerWindow(m.SendTimes, c.window)
		m.PeakArrivalsPerWindow = PeakPerWindow(m.ArrivalTimes, c.window)
		if m.PeakSendsPerWindow > 0 {
			m.Magnification = float64(m.PeakArrivalsPerWindow) / float64(m.PeakSendsPerWindow)
		}

		if len(a.transits) > 0 {
			m.MeanTransit = mean(a.transits)
		}
		if a.synced > 0 {
			m.MeanExtraDelay = a.extraTotal / float64(a.synced)
		}

		result[key] = m
	}

	return result
}

// PeakPerWindow returns the largest number of timestamps falling into one
// bin of the given width, bins aligned at zero.
func PeakPerWindow(times []float64, window float64) int {
	if window <= 0 {
		window = DefaultWindow
	}
	bins := make(map[int64]int)
	peak := 0
	for _, t := range times {
		b := int64(math.Floor(t / window))
		bins[b]++
		if bins[b] > peak {
			peak = bins[b]
		}
	}
	return peak
}

// Percentile interpolates the p-th quantile (0..1) of sorted values
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func sortedCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	sort.Float64s(out)
	return out
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	mu := mean(v)
	var ss float64
	for _, x := range v {
		ss += (x - mu) * (x - mu)
	}
	return math.Sqrt(ss / float64(len(v)))
}

// ComputeFromLog reads an event log and computes metrics
func ComputeFromLog(logPath string, window float64) (map[string]*FlowMetrics, error) {
	reader, err := eventlog.NewReader(logPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	c := NewCollector(window)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		c.ProcessEvent(event)
	}

	return c.Compute(), nil
}

// ComputeFromEvents computes metrics directly from an in-memory event stream
func ComputeFromEvents(events []*domain.Event, window float64) map[string]*FlowMetrics {
	c := NewCollector(window)
	for _, event := range events {
		if event == nil {
			continue
		}
		c.ProcessEvent(event)
	}
	return c.Compute()
}
