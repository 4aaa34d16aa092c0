package connect

import (
	"fmt"
	"sync"
	"time"
)

// DestinationKind names which concrete destination driver a Mapping
// targets. The flush engine never branches on this itself — it only
// ever calls the Writer it was built with, chosen at startup from the
// connector type — but the transformer uses it to pick the record
// shape (schema projection, vector extraction or flattening).
type DestinationKind string

const (
	DestinationTable    DestinationKind = "table"
	DestinationVector   DestinationKind = "vector"
	DestinationDocument DestinationKind = "document"
)

// FieldMapping describes one destination column/field projected out of
// a source record for table destinations: a dotted path into the
// decoded payload, the destination field name, its declared logical
// type (one of spec.md §3's closed set), and whether it is required.
// A missing, non-required field is written as an explicit null rather
// than omitted, per spec.md §4.B.2.
type FieldMapping struct {
	SourcePath  string `json:"source_path" yaml:"source_path"`
	Destination string `json:"destination" yaml:"destination"`
	Type        string `json:"type" yaml:"type"` // string, int8/16/32/64, uint8/16/32/64, float32/64, bool, timestamp-micros, date, binary
	Required    bool   `json:"required" yaml:"required"`
}

// WritePolicy names spec.md §3's {append, overwrite} destination write
// mode; append is the default when unset.
type WritePolicy string

const (
	WriteAppend    WritePolicy = "append"
	WriteOverwrite WritePolicy = "overwrite"
)

// Mapping is the unit of configuration named throughout spec.md §3: one
// source topic routed to one destination_ref, with its own batch size,
// flush interval, and (for table destinations) schema.
type Mapping struct {
	Name                  string          `json:"name" yaml:"name"`
	SourceTopic           string          `json:"source_topic" yaml:"source_topic"`
	DestinationRef        string          `json:"destination_ref" yaml:"destination_ref"`
	DestinationType       DestinationKind `json:"destination_type" yaml:"destination_type"`
	BatchSize             int             `json:"batch_size" yaml:"batch_size"`
	FlushIntervalMs       int             `json:"flush_interval_ms" yaml:"flush_interval_ms"`
	SchemaFields          []FieldMapping  `json:"schema_fields,omitempty" yaml:"schema_fields,omitempty"`
	VectorDimension       int             `json:"vector_dimension,omitempty" yaml:"vector_dimension,omitempty"`
	VectorFieldPath       string          `json:"vector_field_path,omitempty" yaml:"vector_field_path,omitempty"`
	WritePolicy           WritePolicy     `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`
	IncludeSourceMetadata bool            `json:"include_source_metadata,omitempty" yaml:"include_source_metadata,omitempty"`
	// Auxiliary carries per-destination tagged options spec.md §3 names
	// (e.g. "distance" for the vector destination's distance metric,
	// "storage_mode" for document destinations) without the engine or
	// registry needing to know each destination's option vocabulary.
	Auxiliary map[string]string `json:"auxiliary,omitempty" yaml:"auxiliary,omitempty"`
}

// EffectiveWritePolicy returns the configured policy, defaulting to
// append per spec.md §3.
func (m Mapping) EffectiveWritePolicy() WritePolicy {
	if m.WritePolicy == "" {
		return WriteAppend
	}
	return m.WritePolicy
}

func (m Mapping) FlushInterval() time.Duration {
	return time.Duration(m.FlushIntervalMs) * time.Millisecond
}

// Validate checks the invariants config load must enforce before a
// Mapping ever reaches the Registry: names and topics non-empty, a
// positive batch size and flush interval, and a destination type the
// engine actually has a driver for.
func (m Mapping) Validate() error {
	if m.Name == "" {
		return NewConfigError("", "mapping name is required", nil)
	}
	if m.SourceTopic == "" {
		return NewConfigError(m.Name, "source_topic is required", nil)
	}
	if m.DestinationRef == "" {
		return NewConfigError(m.Name, "destination_ref is required", nil)
	}
	switch m.DestinationType {
	case DestinationTable, DestinationVector, DestinationDocument:
	default:
		return NewConfigError(m.Name, fmt.Sprintf("unknown destination_type %q", m.DestinationType), nil)
	}
	if m.BatchSize <= 0 {
		return NewConfigError(m.Name, "batch_size must be positive", nil)
	}
	if m.FlushIntervalMs <= 0 {
		return NewConfigError(m.Name, "flush_interval_ms must be positive", nil)
	}
	if m.DestinationType == DestinationVector && m.VectorDimension <= 0 {
		return NewConfigError(m.Name, "vector destinations require vector_dimension", nil)
	}
	switch m.WritePolicy {
	case "", WriteAppend, WriteOverwrite:
	default:
		return NewConfigError(m.Name, fmt.Sprintf("unknown write_policy %q", m.WritePolicy), nil)
	}
	return nil
}

// Registry holds every configured Mapping, indexed by source topic so
// the bus consumer can route an incoming Record in O(1) and by name so
// the runtime contract can look mappings up for health/metrics
// reporting. Registry is read far more than it is written (mappings are
// fixed at startup per spec.md's no-dynamic-reconfiguration non-goal),
// so it is guarded with an RWMutex rather than a channel-owned loop.
type Registry struct {
	mu      sync.RWMutex
	byTopic map[string]*Mapping
	byName  map[string]*Mapping
}

func NewRegistry() *Registry {
	return &Registry{
		byTopic: make(map[string]*Mapping),
		byName:  make(map[string]*Mapping),
	}
}

// Add registers a Mapping. It rejects a second mapping claiming the
// same source topic, since spec.md's ordering guarantee is scoped to
// "within a mapping" and a topic bound to two mappings would make FIFO
// ordering ambiguous.
func (r *Registry) Add(m *Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTopic[m.SourceTopic]; exists {
		return NewConfigError(m.Name, fmt.Sprintf("source_topic %q is already mapped", m.SourceTopic), nil)
	}
	if _, exists := r.byName[m.Name]; exists {
		return NewConfigError(m.Name, "mapping name already registered", nil)
	}
	r.byTopic[m.SourceTopic] = m
	r.byName[m.Name] = m
	return nil
}

func (r *Registry) LookupByTopic(topic string) (*Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTopic[topic]
	return m, ok
}

func (r *Registry) LookupByName(name string) (*Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

func (r *Registry) List() []*Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Mapping, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		out = append(out, t)
	}
	return out
}
