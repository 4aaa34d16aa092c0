package table

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/cohenjo/connectors/pkg/connect"
)

// buildSchema turns a Mapping's declared schema fields into a dynamic
// parquet.Group, the way the teacher's transform engine walked a
// dotted-path config at runtime rather than relying on generated
// struct tags — parquet-go supports exactly this: a *parquet.Schema
// built from a Group of named Nodes, written to with plain
// map[string]interface{} rows instead of a fixed Go struct, which is
// what a dynamic per-mapping schema needs.
func buildSchema(mapping *connect.Mapping) *parquet.Schema {
	group := parquet.Group{}
	for _, f := range mapping.SchemaFields {
		node := leafNode(f.Type)
		if !f.Required {
			node = parquet.Optional(node)
		}
		group[f.Destination] = node
	}
	group["_source_metadata"] = parquet.Optional(parquet.String())
	return parquet.NewSchema(mapping.Name, group)
}

// leafNode maps each of spec.md §3's closed logical types to the
// parquet.Node coerceType's Go value actually matches: every integer
// width coerces to a Go int64/uint64 (coerceType range-checks before
// narrowing), so the physical column still needs the matching
// Int(width)/Uint(width) bit-width annotation declared by the schema.
func leafNode(declared string) parquet.Node {
	switch declared {
	case "int8":
		return parquet.Int(8)
	case "int16":
		return parquet.Int(16)
	case "int32":
		return parquet.Int(32)
	case "int64":
		return parquet.Int(64)
	case "uint8":
		return parquet.Uint(8)
	case "uint16":
		return parquet.Uint(16)
	case "uint32":
		return parquet.Uint(32)
	case "uint64":
		return parquet.Uint(64)
	case "float32":
		return parquet.Leaf(parquet.FloatType)
	case "float64":
		return parquet.Leaf(parquet.DoubleType)
	case "bool", "boolean":
		return parquet.Leaf(parquet.BooleanType)
	case "timestamp-micros", "timestamp":
		return parquet.Timestamp(parquet.Microsecond)
	case "date":
		return parquet.Date()
	case "binary":
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

// encodeBatch writes batch as one parquet file body in memory. Each
// Destination.Fields map is copied key by key into the row (no
// filtering by the schema's field names); a column absent from the row
// is treated by parquet-go as null for Optional nodes.
func encodeBatch(schema *parquet.Schema, batch []connect.Destination) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)

	for _, d := range batch {
		row := make(map[string]interface{}, len(d.Fields))
		for k, v := range d.Fields {
			row[k] = normalizeValue(v)
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("encode parquet row: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizeValue adapts a few Go shapes the transformer can hand back
// into what parquet-go's schema-matching reflection expects: a nested
// map is rendered to a string with fmt's %v format (not JSON).
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return fmt.Sprintf("%v", t)
	case time.Time:
		return t
	default:
		return v
	}
}
