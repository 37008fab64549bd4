package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram.
type MetricID uint16

const (
	MetricIssueSuccess MetricID = iota
	MetricVerifySuccess
	MetricVerifyMalformed
	MetricVerifyExpired
	MetricVerifyBlacklisted
	MetricVerifyInvalidated
	MetricVerifyStoreUnavailable
	MetricRotateSuccess
	MetricRotateFailure
	MetricReuseDetected
	MetricFamilyRevoked
	MetricKeyRotation
	MetricSessionCreated
	MetricLogout
	MetricBlacklist
	MetricInvalidation
	MetricVerifyLatency
	MetricIDCount
)

const (
	// HistBucketCount is the number of latency buckets per histogram.
	HistBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
// The last bucket is +Inf.
var HistogramBounds = [HistBucketCount - 1]time.Duration{
	500 * time.Microsecond,
	time.Millisecond,
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
}

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [HistBucketCount]atomic.Uint64
}

// Config controls which instrument families are live.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counter and histogram state. A disabled Metrics is a
// valid no-op.
type Metrics struct {
	enabled       bool
	latencyActive bool
	counters      [MetricIDCount]paddedCounter
	histograms    map[MetricID]*histogram
}

// Snapshot is a deep copy of all metric state at one instant.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	m := &Metrics{
		enabled:       cfg.Enabled,
		latencyActive: cfg.Enabled && cfg.EnableLatency,
		histograms:    make(map[MetricID]*histogram),
	}
	if m.latencyActive {
		m.histograms[MetricVerifyLatency] = &histogram{}
	}
	return m
}

// Inc adds one to a counter. No-op when disabled or out of range.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Observe records a latency sample into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latencyActive {
		return
	}
	h, ok := m.histograms[id]
	if !ok {
		return
	}

	bucket := HistBucketCount - 1
	for i, bound := range HistogramBounds {
		if d <= bound {
			bucket = i
			break
		}
	}
	h.buckets[bucket].Add(1)
}

// SnapshotNow returns a deep copy of all counters and histogram buckets.
func (m *Metrics) SnapshotNow() Snapshot {
	out := Snapshot{
		Counters:   make(map[MetricID]uint64, MetricIDCount),
		Histograms: make(map[MetricID][]uint64, len(m.histograms)),
	}
	if m == nil || !m.enabled {
		return out
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		out.Counters[id] = m.counters[id].value.Load()
	}
	for id, h := range m.histograms {
		buckets := make([]uint64, HistBucketCount)
		for i := range h.buckets {
			buckets[i] = h.buckets[i].Load()
		}
		out.Histograms[id] = buckets
	}
	return out
}
