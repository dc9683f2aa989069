package searcher

import (
	"sync/atomic"
	"time"
)

// SearchMetrics summarizes one search budget.
type SearchMetrics struct {
	StartTime  time.Time
	Duration   time.Duration
	Playouts   int64
	Conflicts  int64
	TreeReused bool
}

type MetricsCollector interface {
	Start()
	AddPlayout()
	AddConflict()
	ReusedTree()
	Complete() SearchMetrics
}

type metricsCollector struct {
	startTime  time.Time
	playouts   atomic.Int64
	conflicts  atomic.Int64
	treeReused atomic.Bool
}

func NewMetricsCollector() MetricsCollector {
	return &metricsCollector{}
}

func (m *metricsCollector) Start() {
	m.startTime = time.Now()
	m.playouts.Store(0)
	m.conflicts.Store(0)
	m.treeReused.Store(false)
}

func (m *metricsCollector) AddPlayout() {
	m.playouts.Add(1)
}

func (m *metricsCollector) AddConflict() {
	m.conflicts.Add(1)
}

func (m *metricsCollector) ReusedTree() {
	m.treeReused.Store(true)
}

func (m *metricsCollector) Complete() SearchMetrics {
	return SearchMetrics{
		StartTime:  m.startTime,
		Duration:   time.Since(m.startTime),
		Playouts:   m.playouts.Load(),
		Conflicts:  m.conflicts.Load(),
		TreeReused: m.treeReused.Load(),
	}
}

type noMetricsCollector struct{}

func NewNoMetricsCollector() MetricsCollector {
	return &noMetricsCollector{}
}

func (noMetricsCollector) Start()                   {}
func (noMetricsCollector) AddPlayout()              {}
func (noMetricsCollector) AddConflict()             {}
func (noMetricsCollector) ReusedTree()              {}
func (noMetricsCollector) Complete() SearchMetrics { return SearchMetrics{} }
