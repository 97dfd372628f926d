// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics provides performance monitoring and observability for a
// reclaim.Reclaimer engine and the workloads driving it.
//
// This package implements thread-safe metrics collection using buffered
// channels and ring buffers that tracks critical-section counts,
// latencies, retirement/reclamation activity, and misuse rates. It
// enables monitoring reclamation throughput and detecting backlog growth
// in production environments.
//
// # Key Features
//
//   - Thread-safe metrics collection using buffered channels and background processing
//   - Operation count tracking (BeginOp, EndOp, Retire, Reclaim)
//   - Latency measurement with ring buffer storage for historical data
//   - Active-slot and retired-backlog gauges
//   - Misuse rate tracking (double retire, slot exhaustion)
//   - Bounded memory usage with ring buffers
//
// # Usage Examples
//
// Creating and using metrics:
//
//	m := metrics.NewMetrics()
//
//	start := time.Now()
//	h := engine.BeginOp(slot)
//	m.RecordBeginOp(time.Since(start))
//
//	// ... critical section ...
//
//	engine.EndOp(slot, h)
//
//	m.SetActiveSlots(uint64(activeCount))
//	m.SetRetiredBacklog(uint64(backlogCount))
//
//	stats := m.GetStats()
//	fmt.Printf("Retire operations: %d, Avg latency: %dns\n",
//	    stats.Operations.Retire, stats.Latency.Retire.Mean)
//
//	m.Close()
//
// # Performance Characteristics
//
//   - **Fast Operation Recording**: Non-blocking channel sends for minimal overhead
//   - **Background Processing**: Metrics processed asynchronously to avoid blocking operations
//   - **Bounded Memory**: Ring buffers prevent unbounded memory growth
//   - **Event Loss Protection**: Non-blocking sends prevent operation blocking
//
// # Dangers and Warnings
//
//   - **Background Goroutine**: Requires proper cleanup with Close() method
//   - **Event Loss**: If buffer is full, events may be dropped (non-blocking behavior)
//   - **Stats Latency**: Stats may be slightly delayed due to background processing
//
// # Thread Safety
//
// All metrics operations are thread-safe and can be called concurrently
// from multiple goroutines. Background processing ensures consistency without blocking.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// LatencyStats provides comprehensive latency statistics
type LatencyStats struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	P999  time.Duration `json:"p999"`
}

// OperationCounts tracks counts for all reclaimer operation types.
type OperationCounts struct {
	BeginOp uint64 `json:"begin_op"`
	EndOp   uint64 `json:"end_op"`
	Retire  uint64 `json:"retire"`
	Reclaim uint64 `json:"reclaim"`
}

// MisuseCounts tracks detected-misuse counts.
type MisuseCounts struct {
	DoubleRetire   uint64 `json:"double_retire"`
	SlotExhaustion uint64 `json:"slot_exhaustion"`
}

// BacklogMetrics tracks reclamation backlog and participation state.
type BacklogMetrics struct {
	ActiveSlots     uint64 `json:"active_slots"`
	RetiredBacklog  uint64 `json:"retired_backlog"`
	ReclaimedTotal  uint64 `json:"reclaimed_total"`
	MinActiveEpoch  uint64 `json:"min_active_epoch"`
}

// LatencyMetrics tracks latency data for all operations.
type LatencyMetrics struct {
	BeginOp LatencyStats `json:"begin_op"`
	EndOp   LatencyStats `json:"end_op"`
	Retire  LatencyStats `json:"retire"`
	Reclaim LatencyStats `json:"reclaim"`
}

// MetricsSnapshot provides a complete snapshot of all metrics.
type MetricsSnapshot struct {
	Operations    OperationCounts `json:"operations"`
	Misuse        MisuseCounts    `json:"misuse"`
	Backlog       BacklogMetrics  `json:"backlog"`
	Latency       LatencyMetrics  `json:"latency"`
	Configuration MetricsConfig   `json:"config"`
}

// MetricEvent represents a single metric event.
type MetricEvent struct {
	Type      string
	Duration  time.Duration
	Timestamp time.Time
	Metadata  map[string]interface{} // Additional context for the event
}

// DurationRingBuffer implements a thread-safe bounded ring buffer for time.Duration
type DurationRingBuffer struct {
	buffer []time.Duration
	head   int
	tail   int
	size   int
	count  int
	mu     sync.RWMutex
}

// NewDurationRingBuffer creates a new ring buffer with specified capacity
func NewDurationRingBuffer(capacity int) *DurationRingBuffer {
	return &DurationRingBuffer{
		buffer: make([]time.Duration, capacity),
		size:   capacity,
	}
}

// Push adds an item to the ring buffer
func (rb *DurationRingBuffer) Push(item time.Duration) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.tail] = item
	rb.tail = (rb.tail + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
	}
}

// GetAverage calculates the average of time.Duration values in the buffer
func (rb *DurationRingBuffer) GetAverage() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return 0
	}

	var total time.Duration
	for i := 0; i < rb.count; i++ {
		idx := (rb.head + i) % rb.size
		total += rb.buffer[idx]
	}

	return total / time.Duration(rb.count)
}

// GetStats calculates comprehensive latency statistics
func (rb *DurationRingBuffer) GetStats() LatencyStats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return LatencyStats{}
	}

	values := make([]time.Duration, rb.count)
	for i := 0; i < rb.count; i++ {
		idx := (rb.head + i) % rb.size
		values[i] = rb.buffer[idx]
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i] < values[j]
	})

	stats := LatencyStats{
		Count: uint64(rb.count),
		Min:   values[0],
		Max:   values[rb.count-1],
	}

	var total time.Duration
	for _, v := range values {
		total += v
	}
	stats.Mean = total / time.Duration(rb.count)

	stats.P50 = rb.percentile(values, 0.50)
	stats.P95 = rb.percentile(values, 0.95)
	stats.P99 = rb.percentile(values, 0.99)
	stats.P999 = rb.percentile(values, 0.999)

	return stats
}

// percentile calculates the nth percentile from sorted values
func (rb *DurationRingBuffer) percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}

	index := int(float64(len(values)-1) * p)
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

// MetricsConfig provides configuration options for metrics collection
type MetricsConfig struct {
	BufferSize       int            // Size of event buffer
	LatencyBuffers   map[string]int // Per-operation ring buffer sizes
	SamplingRate     float64        // Carried in snapshots only; every event is recorded regardless
	EnablePrometheus bool           // Carried in snapshots only; ExportPrometheus works regardless
	ExportInterval   time.Duration  // Carried in snapshots only; no automatic export runs
}

// DefaultMetricsConfig returns a default configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		BufferSize: 10000,
		LatencyBuffers: map[string]int{
			"begin_op": 1000,
			"end_op":   1000,
			"retire":   1000,
			"reclaim":  100,
		},
		SamplingRate:     1.0,
		EnablePrometheus: false,
		ExportInterval:   0, // Disabled by default
	}
}

// Metrics tracks reclaimer performance metrics using buffered channels and ring buffers
type Metrics struct {
	config MetricsConfig

	eventChan chan MetricEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.RWMutex

	BeginOpCount uint64
	EndOpCount   uint64
	RetireCount  uint64
	ReclaimCount uint64

	BeginOpLatency *DurationRingBuffer
	EndOpLatency   *DurationRingBuffer
	RetireLatency  *DurationRingBuffer
	ReclaimLatency *DurationRingBuffer

	ActiveSlots    uint64
	RetiredBacklog uint64
	ReclaimedTotal uint64
	MinActiveEpoch uint64

	DoubleRetireCount   uint64
	SlotExhaustionCount uint64
}

// NewMetrics creates a new metrics instance with default configuration
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(DefaultMetricsConfig())
}

// NewBufferedMetrics creates a new metrics instance with configurable buffer size
func NewBufferedMetrics(bufferSize int) *Metrics {
	config := DefaultMetricsConfig()
	config.BufferSize = bufferSize
	return NewMetricsWithConfig(config)
}

// NewMetricsWithConfig creates a new metrics instance with custom configuration
func NewMetricsWithConfig(config MetricsConfig) *Metrics {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Metrics{
		config:         config,
		eventChan:      make(chan MetricEvent, config.BufferSize),
		ctx:            ctx,
		cancel:         cancel,
		BeginOpLatency: NewDurationRingBuffer(config.LatencyBuffers["begin_op"]),
		EndOpLatency:   NewDurationRingBuffer(config.LatencyBuffers["end_op"]),
		RetireLatency:  NewDurationRingBuffer(config.LatencyBuffers["retire"]),
		ReclaimLatency: NewDurationRingBuffer(config.LatencyBuffers["reclaim"]),
	}

	m.wg.Add(1)
	go m.processEvents()

	return m
}

// processEvents runs in background goroutine to process metric events
func (m *Metrics) processEvents() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.eventChan:
			m.processEvent(event)
		case <-m.ctx.Done():
			return
		}
	}
}

// processEvent handles a single metric event
func (m *Metrics) processEvent(event MetricEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case "begin_op":
		m.BeginOpCount++
		m.BeginOpLatency.Push(event.Duration)
	case "end_op":
		m.EndOpCount++
		m.EndOpLatency.Push(event.Duration)
	case "retire":
		m.RetireCount++
		m.RetireLatency.Push(event.Duration)
	case "reclaim":
		m.ReclaimCount++
		m.ReclaimLatency.Push(event.Duration)
		if n, ok := event.Metadata["count"].(int); ok {
			m.ReclaimedTotal += uint64(n)
		}
	case "double_retire":
		m.DoubleRetireCount++
	case "slot_exhaustion":
		m.SlotExhaustionCount++
	}
}

// RecordBeginOp records a BeginOp call.
func (m *Metrics) RecordBeginOp(duration time.Duration) {
	select {
	case m.eventChan <- MetricEvent{Type: "begin_op", Duration: duration, Timestamp: time.Now()}:
	default:
		// Channel full, drop the event to avoid blocking
	}
}

// RecordEndOp records an EndOp call.
func (m *Metrics) RecordEndOp(duration time.Duration) {
	select {
	case m.eventChan <- MetricEvent{Type: "end_op", Duration: duration, Timestamp: time.Now()}:
	default:
	}
}

// RecordRetire records a Retire call.
func (m *Metrics) RecordRetire(duration time.Duration) {
	select {
	case m.eventChan <- MetricEvent{Type: "retire", Duration: duration, Timestamp: time.Now()}:
	default:
	}
}

// RecordReclaim records a reclamation sweep that destroyed count objects.
func (m *Metrics) RecordReclaim(duration time.Duration, count int) {
	select {
	case m.eventChan <- MetricEvent{
		Type:      "reclaim",
		Duration:  duration,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"count": count},
	}:
	default:
	}
}

// RecordDoubleRetire records a detected double-retire misuse event.
func (m *Metrics) RecordDoubleRetire() {
	select {
	case m.eventChan <- MetricEvent{Type: "double_retire", Timestamp: time.Now()}:
	default:
	}
}

// RecordSlotExhaustion records a failed Register call due to a full slot table.
func (m *Metrics) RecordSlotExhaustion() {
	select {
	case m.eventChan <- MetricEvent{Type: "slot_exhaustion", Timestamp: time.Now()}:
	default:
	}
}

// SetActiveSlots sets the number of currently registered/active slots.
func (m *Metrics) SetActiveSlots(count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ActiveSlots = count
}

// SetRetiredBacklog sets the number of retired-but-not-yet-reclaimed objects.
func (m *Metrics) SetRetiredBacklog(count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RetiredBacklog = count
}

// SetMinActiveEpoch records the IBR engine's current minimum active epoch.
func (m *Metrics) SetMinActiveEpoch(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MinActiveEpoch = epoch
}

// GetStats returns a snapshot of current metrics
func (m *Metrics) GetStats() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		Operations: OperationCounts{
			BeginOp: m.BeginOpCount,
			EndOp:   m.EndOpCount,
			Retire:  m.RetireCount,
			Reclaim: m.ReclaimCount,
		},
		Misuse: MisuseCounts{
			DoubleRetire:   m.DoubleRetireCount,
			SlotExhaustion: m.SlotExhaustionCount,
		},
		Backlog: BacklogMetrics{
			ActiveSlots:    m.ActiveSlots,
			RetiredBacklog: m.RetiredBacklog,
			ReclaimedTotal: m.ReclaimedTotal,
			MinActiveEpoch: m.MinActiveEpoch,
		},
		Latency: LatencyMetrics{
			BeginOp: m.BeginOpLatency.GetStats(),
			EndOp:   m.EndOpLatency.GetStats(),
			Retire:  m.RetireLatency.GetStats(),
			Reclaim: m.ReclaimLatency.GetStats(),
		},
		Configuration: m.config,
	}
}

// ExportPrometheus exports metrics in Prometheus format
func (m *Metrics) ExportPrometheus() string {
	stats := m.GetStats()
	var result string

	result += fmt.Sprintf("# HELP reclaim_operations_total Total number of reclaimer operations\n")
	result += fmt.Sprintf("# TYPE reclaim_operations_total counter\n")
	result += fmt.Sprintf("reclaim_operations_total{operation=\"begin_op\"} %d\n", stats.Operations.BeginOp)
	result += fmt.Sprintf("reclaim_operations_total{operation=\"end_op\"} %d\n", stats.Operations.EndOp)
	result += fmt.Sprintf("reclaim_operations_total{operation=\"retire\"} %d\n", stats.Operations.Retire)
	result += fmt.Sprintf("reclaim_operations_total{operation=\"reclaim\"} %d\n", stats.Operations.Reclaim)

	result += fmt.Sprintf("# HELP reclaim_latency_nanoseconds Average latency for operations\n")
	result += fmt.Sprintf("# TYPE reclaim_latency_nanoseconds gauge\n")
	result += fmt.Sprintf("reclaim_latency_nanoseconds{operation=\"begin_op\"} %d\n", int64(stats.Latency.BeginOp.Mean.Nanoseconds()))
	result += fmt.Sprintf("reclaim_latency_nanoseconds{operation=\"end_op\"} %d\n", int64(stats.Latency.EndOp.Mean.Nanoseconds()))
	result += fmt.Sprintf("reclaim_latency_nanoseconds{operation=\"retire\"} %d\n", int64(stats.Latency.Retire.Mean.Nanoseconds()))
	result += fmt.Sprintf("reclaim_latency_nanoseconds{operation=\"reclaim\"} %d\n", int64(stats.Latency.Reclaim.Mean.Nanoseconds()))

	result += fmt.Sprintf("# HELP reclaim_misuse_total Total number of detected misuse events\n")
	result += fmt.Sprintf("# TYPE reclaim_misuse_total counter\n")
	result += fmt.Sprintf("reclaim_misuse_total{kind=\"double_retire\"} %d\n", stats.Misuse.DoubleRetire)
	result += fmt.Sprintf("reclaim_misuse_total{kind=\"slot_exhaustion\"} %d\n", stats.Misuse.SlotExhaustion)

	result += fmt.Sprintf("# HELP reclaim_active_slots Number of currently registered slots\n")
	result += fmt.Sprintf("# TYPE reclaim_active_slots gauge\n")
	result += fmt.Sprintf("reclaim_active_slots %d\n", stats.Backlog.ActiveSlots)

	result += fmt.Sprintf("# HELP reclaim_retired_backlog Objects retired but not yet reclaimed\n")
	result += fmt.Sprintf("# TYPE reclaim_retired_backlog gauge\n")
	result += fmt.Sprintf("reclaim_retired_backlog %d\n", stats.Backlog.RetiredBacklog)

	result += fmt.Sprintf("# HELP reclaim_reclaimed_total Total objects destroyed\n")
	result += fmt.Sprintf("# TYPE reclaim_reclaimed_total counter\n")
	result += fmt.Sprintf("reclaim_reclaimed_total %d\n", stats.Backlog.ReclaimedTotal)

	result += fmt.Sprintf("# HELP reclaim_min_active_epoch Minimum active epoch across registered participants\n")
	result += fmt.Sprintf("# TYPE reclaim_min_active_epoch gauge\n")
	result += fmt.Sprintf("reclaim_min_active_epoch %d\n", stats.Backlog.MinActiveEpoch)

	return result
}

// ExportJSON exports metrics as JSON
func (m *Metrics) ExportJSON() []byte {
	stats := m.GetStats()
	jsonData, _ := json.MarshalIndent(stats, "", "  ")
	return jsonData
}

// Close shuts down the metrics processor
func (m *Metrics) Close() {
	m.cancel()
	m.wg.Wait()
	close(m.eventChan)
}
