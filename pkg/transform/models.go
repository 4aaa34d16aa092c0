package transform

import (
	"sync"
	"time"
)

// EngineMetrics tracks transformation throughput and failures per
// mapping, kept in the same per-rule-metrics shape the teacher's
// kazaam-based engine used (pkg/transform/engine.go's EngineMetrics/
// RuleMetrics), generalized from "rule name" to "mapping name" since
// this engine no longer executes named kazaam rules.
type EngineMetrics struct {
	mu                   sync.Mutex
	TotalTransformations int64
	Successful           int64
	Failed               int64
	MappingMetrics       map[string]*MappingMetrics
}

// MappingMetrics is the per-mapping breakdown, mirroring the teacher's
// RuleMetrics.
type MappingMetrics struct {
	Name            string
	Executions      int64
	Successes       int64
	Failures        int64
	LastExecutionAt *time.Time
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{MappingMetrics: make(map[string]*MappingMetrics)}
}

func (m *EngineMetrics) recordSuccess(mapping string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalTransformations++
	m.Successful++
	mm := m.mappingMetricsLocked(mapping)
	mm.Executions++
	mm.Successes++
	now := time.Now()
	mm.LastExecutionAt = &now
}

func (m *EngineMetrics) recordFailure(mapping string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalTransformations++
	m.Failed++
	mm := m.mappingMetricsLocked(mapping)
	mm.Executions++
	mm.Failures++
	now := time.Now()
	mm.LastExecutionAt = &now
}

func (m *EngineMetrics) mappingMetricsLocked(mapping string) *MappingMetrics {
	mm, ok := m.MappingMetrics[mapping]
	if !ok {
		mm = &MappingMetrics{Name: mapping}
		m.MappingMetrics[mapping] = mm
	}
	return mm
}

// Snapshot returns a copy safe to read without holding the engine's lock.
func (m *EngineMetrics) Snapshot() EngineMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := EngineMetrics{
		TotalTransformations: m.TotalTransformations,
		Successful:           m.Successful,
		Failed:               m.Failed,
		MappingMetrics:       make(map[string]*MappingMetrics, len(m.MappingMetrics)),
	}
	for k, v := range m.MappingMetrics {
		vv := *v
		cp.MappingMetrics[k] = &vv
	}
	return cp
}
