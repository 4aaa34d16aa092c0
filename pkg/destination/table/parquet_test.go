package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohenjo/connectors/pkg/connect"
)

func TestBuildSchemaProjectsDeclaredFields(t *testing.T) {
	mapping := &connect.Mapping{
		Name: "orders",
		SchemaFields: []connect.FieldMapping{
			{SourcePath: "id", Destination: "order_id", Type: "int64", Required: true},
			{SourcePath: "total", Destination: "total_amount", Type: "float64"},
			{SourcePath: "placed_at", Destination: "placed_at", Type: "timestamp"},
		},
	}

	schema := buildSchema(mapping)
	require.NotNil(t, schema)

	names := make(map[string]bool)
	for _, f := range schema.Fields() {
		names[f.Name()] = true
	}
	assert.True(t, names["order_id"])
	assert.True(t, names["total_amount"])
	assert.True(t, names["placed_at"])
	assert.True(t, names["_source_metadata"])
}

func TestEncodeBatchProducesNonEmptyParquetBody(t *testing.T) {
	mapping := &connect.Mapping{
		Name: "orders",
		SchemaFields: []connect.FieldMapping{
			{SourcePath: "id", Destination: "order_id", Type: "int64", Required: true},
		},
	}
	schema := buildSchema(mapping)

	batch := []connect.Destination{
		{Fields: map[string]interface{}{"order_id": int64(1), "_source_metadata": map[string]interface{}{"topic": "orders"}}},
		{Fields: map[string]interface{}{"order_id": int64(2)}},
	}

	data, err := encodeBatch(schema, batch)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
