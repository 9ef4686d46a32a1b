// Package metrics provides in-memory timing statistics for remote API calls.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the API client.
const (
	OpCreateSnapshot = "create_snapshot"
	OpSnapshotDetail = "snapshot_detail"
	OpGetProject     = "get_project"
	OpLookupProject  = "lookup_project"
	OpListProjects   = "list_projects"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Op        string
	Count     int64
	Errors    int64
	AvgTimeMs float64
	MinTimeMs int64
	MaxTimeMs int64
}

// Collector aggregates call timings.
// All methods are thread-safe and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordCall records the duration and outcome of one call.
func (c *Collector) RecordCall(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Errors++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Track starts timing op; call the returned func with the call's error.
func (c *Collector) Track(op string) func(error) {
	start := time.Now()
	return func(err error) {
		c.RecordCall(op, time.Since(start), err)
	}
}

// Snapshot returns per-operation stats sorted by operation name.
func (c *Collector) Snapshot() []OperationSnapshot {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]OperationSnapshot, 0, len(c.ops))
	for op, m := range c.ops {
		if m.Count == 0 {
			continue
		}
		out = append(out, OperationSnapshot{
			Op:        op,
			Count:     m.Count,
			Errors:    m.Errors,
			AvgTimeMs: float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs: m.MinTime.Milliseconds(),
			MaxTimeMs: m.MaxTime.Milliseconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}
