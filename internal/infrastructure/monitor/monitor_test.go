package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

type fakeHost struct {
	available atomic.Bool
	sink      ports.EventSink
}

func newFakeHost(available bool) *fakeHost {
	h := &fakeHost{}
	h.available.Store(available)
	return h
}

func (h *fakeHost) Available() bool { return h.available.Load() }

func (h *fakeHost) Register(sink ports.EventSink) error {
	h.sink = sink
	return nil
}

type recordingExporter struct {
	mu      sync.Mutex
	batches [][]domain.ClassifiedEvent
	err     error
}

func (e *recordingExporter) ExportEvents(_ context.Context, batch []domain.ClassifiedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, batch)
	return e.err
}

func (e *recordingExporter) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, b := range e.batches {
		n += len(b)
	}
	return n
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	panic("boom")
}

func keylogEvent(id string) domain.BehaviorEvent {
	return domain.BehaviorEvent{
		ExtensionID: id,
		Kind:        domain.KindKeyDown,
		Payload:     map[string]string{domain.PayloadInputType: "password"},
	}
}

func newMonitor(t *testing.T, host ports.HostEnvironment, opts Options) *Monitor {
	t.Helper()
	opts.Host = host
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func TestNewRegistersWithHost(t *testing.T) {
	host := newFakeHost(true)
	m := newMonitor(t, host, Options{})
	assert.Same(t, m, host.sink)
}

type failingHost struct{}

func (failingHost) Available() bool { return true }
func (failingHost) Register(ports.EventSink) error { return errors.New("no hooks") }

func TestNewFailsWhenRegistrationFails(t *testing.T) {
	_, err := New(Options{Host: failingHost{}})
	require.Error(t, err)
}

func TestResultsNilForUnknownExtension(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	assert.Nil(t, m.GetExtensionMonitoringResults("never-started"))
}

func TestStartTracksWithZeroCounts(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, "ext-a", res.ExtensionID)
	assert.Equal(t, 0, res.Behaviors.Total())
	assert.Equal(t, 0, res.RiskScore)
	assert.Len(t, res.Behaviors, len(domain.BehaviorCategories))
}

func TestStartIsIdempotent(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))
	m.Ingest(keylogEvent("ext-a"))
	since := m.GetExtensionMonitoringResults("ext-a").MonitoredSince

	m.StartMonitoringExtension("ext-a")

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Behaviors[domain.BehaviorKeylogging])
	assert.Equal(t, since, res.MonitoredSince)
	assert.Equal(t, []string{"ext-a"}, m.Sessions())
}

func TestStopDiscardsSession(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))

	m.StopMonitoringExtension("ext-a")
	assert.Nil(t, m.GetExtensionMonitoringResults("ext-a"))

	m.StopMonitoringExtension("ext-a")
	m.StopMonitoringExtension("never-started")

	m.StartMonitoringExtension("ext-a")
	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Behaviors.Total(), "restarted session must not resurrect old counts")
}

func TestGlobalTotalsSurviveStop(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))
	m.StopMonitoringExtension("ext-a")

	snap := m.GetBehavioralAnalysis()
	assert.True(t, snap.Available)
	assert.Equal(t, 1, snap.Keylogging)
	assert.Equal(t, 20, snap.RiskScore)
}

func TestSensitiveDataAccessCountedSeparately(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindAPICall, Payload: map[string]string{domain.PayloadAPI: "localStorage.getItem"}})
	m.Ingest(domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindStorageAccess})

	snap := m.GetBehavioralAnalysis()
	assert.Equal(t, 2, snap.DataAccess)
	assert.Equal(t, 0, snap.SensitiveDataAccess)

	m.Ingest(domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindCookieAccess})
	m.Ingest(domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindAPICall, Payload: map[string]string{domain.PayloadAPI: "chrome.history.search"}})

	snap = m.GetBehavioralAnalysis()
	assert.Equal(t, 4, snap.DataAccess)
	assert.Equal(t, 2, snap.SensitiveDataAccess)
}

func TestIngestIgnoresUnmonitoredExtensions(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.Ingest(keylogEvent("ext-a"))

	assert.Equal(t, 0, m.GetBehavioralAnalysis().Keylogging)
	assert.Equal(t, int64(0), m.Stats().Classified)
}

func TestUnavailableHostReadsZero(t *testing.T) {
	host := newFakeHost(false)
	m := newMonitor(t, host, Options{})

	assert.False(t, m.IsRuntimeMonitoringAvailable())
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res, "sessions are tracked even without hooks")
	assert.Equal(t, 0, res.Behaviors.Total())

	snap := m.GetBehavioralAnalysis()
	assert.Equal(t, domain.NewBehavioralSnapshot(false, domain.NewBehaviorCounts(), 0), snap)
}

func TestNoHostIsUnavailable(t *testing.T) {
	m := newMonitor(t, nil, Options{})
	assert.False(t, m.IsRuntimeMonitoringAvailable())
	assert.False(t, m.GetBehavioralAnalysis().Available)
}

func TestClassifierPanicIsCounted(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{Classifier: panickingClassifier{}})
	m.StartMonitoringExtension("ext-a")

	assert.NotPanics(t, func() { m.Ingest(keylogEvent("ext-a")) })

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ClassificationFailures)
	assert.Equal(t, 0, res.Behaviors.Total())
	assert.Equal(t, int64(1), m.Stats().ClassificationFailures)
}

func TestMalformedEventIsCounted(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindFetch})

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ClassificationFailures)
}

func TestConcurrentIngestAcrossExtensions(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{BufferCapacity: 10000})
	ids := []string{"ext-a", "ext-b", "ext-c", "ext-d"}
	for _, id := range ids {
		m.StartMonitoringExtension(id)
	}

	const perWorker = 200
	var wg sync.WaitGroup
	for _, id := range ids {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					m.Ingest(keylogEvent(id))
					_ = m.GetExtensionMonitoringResults(id)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		res := m.GetExtensionMonitoringResults(id)
		require.NotNil(t, res)
		assert.Equal(t, 4*perWorker, res.Behaviors[domain.BehaviorKeylogging], id)
		assert.Equal(t, domain.MaxRiskScore, res.RiskScore)
	}
	snap := m.GetBehavioralAnalysis()
	assert.Equal(t, len(ids)*4*perWorker, snap.Keylogging)
	assert.Equal(t, domain.MaxRiskScore, snap.RiskScore)
}

func TestConcurrentStartStop(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := fmt.Sprintf("ext-%d", i%5)
		go func() { defer wg.Done(); m.StartMonitoringExtension(id) }()
		go func() { defer wg.Done(); m.Ingest(keylogEvent(id)) }()
		go func() { defer wg.Done(); m.StopMonitoringExtension(id) }()
	}
	wg.Wait()

	for _, id := range m.Sessions() {
		assert.NotNil(t, m.GetExtensionMonitoringResults(id))
	}
}

func TestFlushExportsSwappedBatch(t *testing.T) {
	exporter := &recordingExporter{}
	m := newMonitor(t, newFakeHost(true), Options{Exporter: exporter})
	m.StartMonitoringExtension("ext-a")
	for i := 0; i < 3; i++ {
		m.Ingest(keylogEvent("ext-a"))
	}

	assert.Equal(t, 3, m.Flush())
	m.WaitExports()
	assert.Equal(t, 3, exporter.total())
	assert.Equal(t, 0, m.Stats().Buffered)
	assert.Equal(t, 0, m.Flush(), "empty buffer exports nothing")
}

func TestExportFailureLeavesStateIntact(t *testing.T) {
	exporter := &recordingExporter{err: errors.New("disk full")}
	m := newMonitor(t, newFakeHost(true), Options{Exporter: exporter})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))

	m.Flush()
	m.WaitExports()

	res := m.GetExtensionMonitoringResults("ext-a")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Behaviors[domain.BehaviorKeylogging])
}

func TestFullBufferDropsButStillCounts(t *testing.T) {
	m := newMonitor(t, newFakeHost(true), Options{BufferCapacity: 2, Exporter: &recordingExporter{}})
	m.StartMonitoringExtension("ext-a")
	for i := 0; i < 5; i++ {
		m.Ingest(keylogEvent("ext-a"))
	}

	stats := m.Stats()
	assert.Equal(t, 2, stats.Buffered)
	assert.Equal(t, int64(3), stats.Dropped)
	assert.Equal(t, 5, m.GetExtensionMonitoringResults("ext-a").Behaviors[domain.BehaviorKeylogging])
}

func TestRunFlushesOnShutdown(t *testing.T) {
	exporter := &recordingExporter{}
	m := newMonitor(t, newFakeHost(true), Options{Exporter: exporter, ExportInterval: time.Hour})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, exporter.total())
}

func TestRunExportsOnTick(t *testing.T) {
	exporter := &recordingExporter{}
	m := newMonitor(t, newFakeHost(true), Options{Exporter: exporter, ExportInterval: 10 * time.Millisecond})
	m.StartMonitoringExtension("ext-a")
	m.Ingest(keylogEvent("ext-a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	assert.Eventually(t, func() bool { return exporter.total() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCalculateBehavioralRiskScore(t *testing.T) {
	weights := domain.DefaultBehaviorWeights()
	tests := []struct {
		name   string
		counts domain.BehaviorCounts
		want   int
	}{
		{"empty", domain.NewBehaviorCounts(), 0},
		{"one request", domain.BehaviorCounts{domain.BehaviorSuspiciousRequests: 1}, 5},
		{"mixed", domain.BehaviorCounts{domain.BehaviorKeylogging: 1, domain.BehaviorDataAccess: 2, domain.BehaviorDangerousAPIs: 1}, 58},
		{"clamped", domain.BehaviorCounts{domain.BehaviorClickjacking: 9}, 100},
		{"huge", domain.BehaviorCounts{domain.BehaviorSuspiciousRequests: int(^uint(0) >> 1)}, 100},
		{"negative ignored", domain.BehaviorCounts{domain.BehaviorKeylogging: -4}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateBehavioralRiskScore(weights, tc.counts))
		})
	}
	assert.Greater(t, weights[domain.BehaviorKeylogging], weights[domain.BehaviorSuspiciousRequests])
	assert.Greater(t, weights[domain.BehaviorDataAccess], weights[domain.BehaviorSuspiciousRequests])
}
