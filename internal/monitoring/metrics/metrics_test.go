// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	defer m.Close()
}

func TestNewMetricsWithConfig(t *testing.T) {
	config := DefaultMetricsConfig()
	config.BufferSize = 5000
	config.LatencyBuffers["retire"] = 500

	m := NewMetricsWithConfig(config)
	if m == nil {
		t.Fatal("NewMetricsWithConfig() returned nil")
	}
	defer m.Close()
}

func TestRecordBeginOp(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	duration := 100 * time.Microsecond
	m.RecordBeginOp(duration)

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Operations.BeginOp != 1 {
		t.Errorf("Expected BeginOpCount to be 1, got %d", stats.Operations.BeginOp)
	}

	latency := int64(stats.Latency.BeginOp.Mean.Nanoseconds())
	if latency != int64(duration.Nanoseconds()) {
		t.Errorf("Expected BeginOpLatency to be %d, got %d", int64(duration.Nanoseconds()), latency)
	}
}

func TestRecordEndOp(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	duration := 200 * time.Microsecond
	m.RecordEndOp(duration)

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Operations.EndOp != 1 {
		t.Errorf("Expected EndOpCount to be 1, got %d", stats.Operations.EndOp)
	}
}

func TestRecordRetire(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	duration := 150 * time.Microsecond
	m.RecordRetire(duration)

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Operations.Retire != 1 {
		t.Errorf("Expected RetireCount to be 1, got %d", stats.Operations.Retire)
	}

	latency := int64(stats.Latency.Retire.Mean.Nanoseconds())
	if latency != int64(duration.Nanoseconds()) {
		t.Errorf("Expected RetireLatency to be %d, got %d", int64(duration.Nanoseconds()), latency)
	}
}

func TestRecordReclaim(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordReclaim(1*time.Millisecond, 7)

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Operations.Reclaim != 1 {
		t.Errorf("Expected ReclaimCount to be 1, got %d", stats.Operations.Reclaim)
	}
	if stats.Backlog.ReclaimedTotal != 7 {
		t.Errorf("Expected ReclaimedTotal to be 7, got %d", stats.Backlog.ReclaimedTotal)
	}
}

func TestRecordDoubleRetire(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordDoubleRetire()
	m.RecordDoubleRetire()

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Misuse.DoubleRetire != 2 {
		t.Errorf("Expected DoubleRetire to be 2, got %d", stats.Misuse.DoubleRetire)
	}
}

func TestRecordSlotExhaustion(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordSlotExhaustion()

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()
	if stats.Misuse.SlotExhaustion != 1 {
		t.Errorf("Expected SlotExhaustion to be 1, got %d", stats.Misuse.SlotExhaustion)
	}
}

func TestSetActiveSlots(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.SetActiveSlots(10)

	stats := m.GetStats()
	if stats.Backlog.ActiveSlots != 10 {
		t.Errorf("Expected ActiveSlots to be 10, got %d", stats.Backlog.ActiveSlots)
	}
}

func TestSetRetiredBacklog(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.SetRetiredBacklog(5)

	stats := m.GetStats()
	if stats.Backlog.RetiredBacklog != 5 {
		t.Errorf("Expected RetiredBacklog to be 5, got %d", stats.Backlog.RetiredBacklog)
	}
}

func TestSetMinActiveEpoch(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.SetMinActiveEpoch(42)

	stats := m.GetStats()
	if stats.Backlog.MinActiveEpoch != 42 {
		t.Errorf("Expected MinActiveEpoch to be 42, got %d", stats.Backlog.MinActiveEpoch)
	}
}

func TestGetStats(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordBeginOp(100 * time.Microsecond)
	m.RecordEndOp(200 * time.Microsecond)
	m.RecordRetire(150 * time.Microsecond)
	m.RecordReclaim(1*time.Millisecond, 3)
	m.RecordDoubleRetire()

	time.Sleep(10 * time.Millisecond)

	stats := m.GetStats()

	if stats.Operations.BeginOp != 1 {
		t.Errorf("Expected begin_op operations to be 1, got %d", stats.Operations.BeginOp)
	}
	if stats.Operations.EndOp != 1 {
		t.Errorf("Expected end_op operations to be 1, got %d", stats.Operations.EndOp)
	}
	if stats.Operations.Retire != 1 {
		t.Errorf("Expected retire operations to be 1, got %d", stats.Operations.Retire)
	}
	if stats.Operations.Reclaim != 1 {
		t.Errorf("Expected reclaim operations to be 1, got %d", stats.Operations.Reclaim)
	}
	if stats.Misuse.DoubleRetire != 1 {
		t.Errorf("Expected double retire misuse to be 1, got %d", stats.Misuse.DoubleRetire)
	}
	if stats.Configuration.BufferSize == 0 {
		t.Error("Expected config to include buffer_size")
	}
}

// TestConcurrentAccess verifies that all operation counters account for
// concurrent updates without dropping events.
func TestConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	var wg sync.WaitGroup
	numGoroutines := 10
	operationsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				m.RecordBeginOp(time.Microsecond)
				m.RecordEndOp(time.Microsecond)
				m.RecordRetire(time.Microsecond)
			}
		}()
	}

	wg.Wait()

	expectedCount := uint64(numGoroutines * operationsPerGoroutine)

	deadline := time.Now().Add(100 * time.Millisecond)
	for {
		stats := m.GetStats()
		if stats.Operations.BeginOp == expectedCount &&
			stats.Operations.EndOp == expectedCount &&
			stats.Operations.Retire == expectedCount {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d operations, got begin_op=%d end_op=%d retire=%d",
				expectedCount, stats.Operations.BeginOp, stats.Operations.EndOp, stats.Operations.Retire)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRingBufferAverage(t *testing.T) {
	rb := NewDurationRingBuffer(5)

	rb.Push(100 * time.Microsecond)
	rb.Push(200 * time.Microsecond)
	rb.Push(300 * time.Microsecond)

	average := rb.GetAverage()
	expected := 200 * time.Microsecond

	if average != expected {
		t.Errorf("Expected average to be %v, got %v", expected, average)
	}
}

func TestRingBufferOverflow(t *testing.T) {
	rb := NewDurationRingBuffer(3)

	rb.Push(100 * time.Microsecond)
	rb.Push(200 * time.Microsecond)
	rb.Push(300 * time.Microsecond)
	rb.Push(400 * time.Microsecond)

	average := rb.GetAverage()
	expected := 300 * time.Microsecond

	if average != expected {
		t.Errorf("Expected average to be %v, got %v", expected, average)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewDurationRingBuffer(5)

	average := rb.GetAverage()
	if average != 0 {
		t.Errorf("Expected average to be 0 for empty buffer, got %v", average)
	}
}

func TestRingBufferStats(t *testing.T) {
	rb := NewDurationRingBuffer(10)

	for i := 1; i <= 5; i++ {
		rb.Push(time.Duration(i*100) * time.Microsecond)
	}

	stats := rb.GetStats()

	if stats.Count != 5 {
		t.Errorf("Expected count to be 5, got %d", stats.Count)
	}
	if stats.Min != 100*time.Microsecond {
		t.Errorf("Expected min to be 100μs, got %v", stats.Min)
	}
	if stats.Max != 500*time.Microsecond {
		t.Errorf("Expected max to be 500μs, got %v", stats.Max)
	}
	if stats.Mean != 300*time.Microsecond {
		t.Errorf("Expected mean to be 300μs, got %v", stats.Mean)
	}
	if stats.P50 != 300*time.Microsecond {
		t.Errorf("Expected P50 to be 300μs, got %v", stats.P50)
	}
	if stats.P95 != 400*time.Microsecond {
		t.Errorf("Expected P95 to be 400μs, got %v", stats.P95)
	}
	if stats.P99 != 400*time.Microsecond {
		t.Errorf("Expected P99 to be 400μs, got %v", stats.P99)
	}
}

func TestExportJSON(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordBeginOp(100 * time.Microsecond)
	m.RecordRetire(200 * time.Microsecond)

	time.Sleep(10 * time.Millisecond)

	jsonData := m.ExportJSON()
	if len(jsonData) == 0 {
		t.Error("Expected non-empty JSON export")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(jsonData, &parsed); err != nil {
		t.Errorf("Expected valid JSON, got error: %v", err)
	}
}

func TestExportPrometheus(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordBeginOp(100 * time.Microsecond)
	m.RecordDoubleRetire()

	time.Sleep(10 * time.Millisecond)

	prometheusData := m.ExportPrometheus()
	if len(prometheusData) == 0 {
		t.Error("Expected non-empty Prometheus export")
	}
	if len(prometheusData) < 100 {
		t.Error("Expected substantial Prometheus data")
	}
}
