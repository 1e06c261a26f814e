package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/logger"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Options configures a Monitor. Nil collaborators are replaced by defaults.
type Options struct {
	Host           ports.HostEnvironment
	Classifier     ports.EventClassifier
	Weights        domain.BehaviorWeights
	Exporter       ports.EventExporter
	ExportInterval time.Duration
	BufferCapacity int
	Logger         ports.Logger
	Clock          func() time.Time
}

// session is the per-extension tracking state. mu serializes all writers for one id.
type session struct {
	mu        sync.Mutex
	id        string
	counts    domain.BehaviorCounts
	failures  int
	createdAt time.Time
	closed    bool
}

// Monitor is the registry of monitoring sessions. It is safe for concurrent use; events
// for different extensions are classified without blocking each other.
type Monitor struct {
	mu       sync.RWMutex
	sessions map[string]*session

	totals    map[domain.BehaviorCategory]*atomic.Int64
	sensitive atomic.Int64
	failures  atomic.Int64
	ingested  atomic.Int64

	host       ports.HostEnvironment
	classifier ports.EventClassifier
	weights    domain.BehaviorWeights
	buffer     *batchBuffer
	exporter   ports.EventExporter
	interval   time.Duration
	exports    sync.WaitGroup
	logger     ports.Logger
	now        func() time.Time
}

// New builds a monitor and registers it with the host environment, if one is given.
func New(opts Options) (*Monitor, error) {
	m := &Monitor{
		sessions:   make(map[string]*session),
		totals:     make(map[domain.BehaviorCategory]*atomic.Int64, len(domain.BehaviorCategories)),
		host:       opts.Host,
		classifier: opts.Classifier,
		weights:    opts.Weights,
		buffer:     newBatchBuffer(opts.BufferCapacity),
		exporter:   opts.Exporter,
		interval:   opts.ExportInterval,
		logger:     opts.Logger,
		now:        opts.Clock,
	}
	for _, c := range domain.BehaviorCategories {
		m.totals[c] = new(atomic.Int64)
	}
	if m.classifier == nil {
		m.classifier = NewClassifier(nil)
	}
	if len(m.weights) == 0 {
		m.weights = domain.DefaultBehaviorWeights()
	}
	if m.interval <= 0 {
		m.interval = domain.DefaultExportInterval
	}
	if m.logger == nil {
		m.logger = logger.Nop{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.host != nil {
		if err := m.host.Register(m); err != nil {
			return nil, fmt.Errorf("register with host environment: %w", err)
		}
	}
	return m, nil
}

// StartMonitoringExtension begins tracking id. Starting a tracked id keeps its counts.
func (m *Monitor) StartMonitoringExtension(extensionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[extensionID]; ok {
		return
	}
	m.sessions[extensionID] = &session{
		id:        extensionID,
		counts:    domain.NewBehaviorCounts(),
		createdAt: m.now(),
	}
	m.logger.Debug("monitoring started", map[string]interface{}{"extension": extensionID})
}

// StopMonitoringExtension stops tracking id and discards its per-session counts.
// Process-wide totals are kept. Unknown ids are ignored.
func (m *Monitor) StopMonitoringExtension(extensionID string) {
	m.mu.Lock()
	s, ok := m.sessions[extensionID]
	delete(m.sessions, extensionID)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	m.logger.Debug("monitoring stopped", map[string]interface{}{"extension": extensionID})
}

// IsRuntimeMonitoringAvailable reports whether the host environment can deliver events.
func (m *Monitor) IsRuntimeMonitoringAvailable() bool {
	return m.host != nil && m.host.Available()
}

// Ingest classifies ev and updates the owning session. It never blocks on I/O and never
// panics; classifier failures are counted on the session.
func (m *Monitor) Ingest(ev domain.BehaviorEvent) {
	if !m.IsRuntimeMonitoringAvailable() {
		return
	}
	m.mu.RLock()
	s := m.sessions[ev.ExtensionID]
	m.mu.RUnlock()
	if s == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}

	category, ok, err := m.classify(ev)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.failures++
		s.mu.Unlock()
		m.failures.Add(1)
		m.logger.Debug("classification failed", map[string]interface{}{"extension": ev.ExtensionID, "kind": ev.Kind, "error": err.Error()})
		return
	}
	if !ok {
		s.mu.Unlock()
		return
	}
	s.counts[category]++
	s.mu.Unlock()

	m.ingested.Add(1)
	if total, known := m.totals[category]; known {
		total.Add(1)
	}
	if category == domain.BehaviorDataAccess && IsSensitiveDataAccess(ev) {
		m.sensitive.Add(1)
	}
	m.buffer.Append(domain.ClassifiedEvent{Event: ev, Category: category, ClassifiedAt: m.now()})
}

// classify runs the classifier with panics converted into errors.
func (m *Monitor) classify(ev domain.BehaviorEvent) (category domain.BehaviorCategory, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			category, ok, err = "", false, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	category, ok, err = m.classifier.Classify(ev)
	if err == nil && ok && !knownBehavior(category) {
		return "", false, fmt.Errorf("classifier returned unknown category %q", category)
	}
	return category, ok, err
}

// GetBehavioralAnalysis returns process-wide totals over current and past sessions.
// Every category reads zero while runtime monitoring is unavailable.
func (m *Monitor) GetBehavioralAnalysis() domain.BehavioralSnapshot {
	if !m.IsRuntimeMonitoringAvailable() {
		return domain.NewBehavioralSnapshot(false, domain.NewBehaviorCounts(), 0)
	}
	counts := domain.NewBehaviorCounts()
	for category, total := range m.totals {
		counts[category] = int(total.Load())
	}
	snapshot := domain.NewBehavioralSnapshot(true, counts, m.CalculateBehavioralRiskScore(counts))
	snapshot.SensitiveDataAccess = int(m.sensitive.Load())
	return snapshot
}

// GetExtensionMonitoringResults returns nil when id is not tracked. A tracked id with no
// events yields zero counts.
func (m *Monitor) GetExtensionMonitoringResults(extensionID string) *domain.ExtensionMonitoringResults {
	m.mu.RLock()
	s := m.sessions[extensionID]
	m.mu.RUnlock()
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	counts := s.counts.Clone()
	failures := s.failures
	since := s.createdAt
	s.mu.Unlock()

	if !m.IsRuntimeMonitoringAvailable() {
		counts = domain.NewBehaviorCounts()
	}
	return &domain.ExtensionMonitoringResults{
		ExtensionID:            extensionID,
		Behaviors:              counts,
		RiskScore:              m.CalculateBehavioralRiskScore(counts),
		ClassificationFailures: failures,
		MonitoredSince:         since,
	}
}

// CalculateBehavioralRiskScore applies the monitor's weight table to counts.
func (m *Monitor) CalculateBehavioralRiskScore(counts domain.BehaviorCounts) int {
	return CalculateBehavioralRiskScore(m.weights, counts)
}

// CalculateBehavioralRiskScore is the weighted sum of counts clamped to [0,100].
func CalculateBehavioralRiskScore(weights domain.BehaviorWeights, counts domain.BehaviorCounts) int {
	return weights.Score(counts)
}

// Sessions lists tracked extension ids in sorted order.
func (m *Monitor) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats is a point-in-time view of monitor counters.
type Stats struct {
	Sessions               int   `json:"sessions"`
	Classified             int64 `json:"classified"`
	ClassificationFailures int64 `json:"classification_failures"`
	Buffered               int   `json:"buffered"`
	Dropped                int64 `json:"dropped"`
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	n := len(m.sessions)
	m.mu.RUnlock()
	return Stats{
		Sessions:               n,
		Classified:             m.ingested.Load(),
		ClassificationFailures: m.failures.Load(),
		Buffered:               m.buffer.Len(),
		Dropped:                m.buffer.Dropped(),
	}
}

// Run flushes the export buffer every interval until ctx is done, then flushes once more
// and waits for in-flight exports. Without an exporter it only waits for ctx.
func (m *Monitor) Run(ctx context.Context) {
	if m.exporter == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Flush()
			m.exports.Wait()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

// Flush swaps out the pending batch and exports it in the background. It returns the
// number of events handed off.
func (m *Monitor) Flush() int {
	if m.exporter == nil {
		return 0
	}
	batch := m.buffer.Swap()
	if len(batch) == 0 {
		return 0
	}
	m.exports.Add(1)
	go func() {
		defer m.exports.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Warn("event export panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		defer cancel()
		if err := m.exporter.ExportEvents(ctx, batch); err != nil {
			m.logger.Warn("event export failed", map[string]interface{}{"events": len(batch), "error": err.Error()})
			return
		}
		m.logger.Debug("events exported", map[string]interface{}{"events": len(batch)})
	}()
	return len(batch)
}

// WaitExports blocks until background exports started by Flush have finished.
func (m *Monitor) WaitExports() {
	m.exports.Wait()
}

func knownBehavior(c domain.BehaviorCategory) bool {
	for _, known := range domain.BehaviorCategories {
		if known == c {
			return true
		}
	}
	return false
}

var _ ports.BehaviorMonitor = (*Monitor)(nil)
