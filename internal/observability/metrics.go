package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	ticks        map[string]*TickStats
}

// TickStats accumulates outcomes for one scheduler.
type TickStats struct {
	Runs         int64     `json:"runs"`
	Skipped      int64     `json:"skipped"`
	Failures     int64     `json:"failures"`
	ItemsOK      int64     `json:"items_ok"`
	ItemsFailed  int64     `json:"items_failed"`
	LastRun      time.Time `json:"last_run"`
	LastDuration string    `json:"last_duration"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests   map[string]int64     `json:"requests"`
	Errors     map[string]int64     `json:"errors"`
	Schedulers map[string]TickStats `json:"schedulers"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		ticks:        make(map[string]*TickStats),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTick stores the outcome of one scheduler tick.
func (m *Metrics) RecordTick(scheduler string, started time.Time, duration time.Duration, ok, failed int, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.tickStats(scheduler)
	stats.Runs++
	stats.ItemsOK += int64(ok)
	stats.ItemsFailed += int64(failed)
	stats.LastRun = started
	stats.LastDuration = duration.String()
	if err != nil {
		stats.Failures++
	}
}

// RecordSkippedTick counts a tick that did not obtain its lease.
func (m *Metrics) RecordSkippedTick(scheduler string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickStats(scheduler).Skipped++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:   map[string]int64{},
		Errors:     map[string]int64{},
		Schedulers: map[string]TickStats{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.ticks {
		snap.Schedulers[k] = *v
	}
	return snap
}

func (m *Metrics) tickStats(scheduler string) *TickStats {
	stats, ok := m.ticks[scheduler]
	if !ok {
		stats = &TickStats{}
		m.ticks[scheduler] = stats
	}
	return stats
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
