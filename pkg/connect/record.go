package connect

import "time"

// Record is the bus message handed to the engine by a Consumer, and the
// unit the Buffer accumulates and the FlushEngine hands to a Writer.
// Field names follow the bus's own vocabulary (topic/partition/offset)
// rather than any destination's, since one Record is fanned out to
// whichever destination its Mapping names.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte
}

// Destination is the shape a transformed Record takes on its way into a
// Writer: a flat or schema-projected set of fields plus the metadata the
// transformer injects, keyed by destination_ref.
type Destination struct {
	Ref       string
	Fields    map[string]interface{}
	PointID   uint64 // populated only for vector destinations
	Vector    []float32
	SourceRec Record
}
