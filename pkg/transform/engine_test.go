package transform

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/cohenjo/connectors/pkg/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableMapping() *connect.Mapping {
	return &connect.Mapping{
		Name:            "orders",
		SourceTopic:     "orders.events",
		DestinationRef:  "lake/orders",
		DestinationType: connect.DestinationTable,
		BatchSize:       10,
		FlushIntervalMs: 1000,
		SchemaFields: []connect.FieldMapping{
			{SourcePath: "order.id", Destination: "order_id", Type: "int64", Required: true},
			{SourcePath: "order.customer.name", Destination: "customer_name", Type: "string", Required: false},
			{SourcePath: "order.total", Destination: "total", Type: "float64", Required: true},
		},
	}
}

func TestEngineProjectSchemaExtractsNestedFields(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "orders.events", Offset: 5, Value: []byte(`{"order":{"id":42,"total":19.99,"customer":{"name":"Ada"}}}`)}

	dest, err := e.Transform(context.Background(), tableMapping(), rec)
	require.NoError(t, err)
	assert.EqualValues(t, 42, dest.Fields["order_id"])
	assert.Equal(t, "Ada", dest.Fields["customer_name"])
	assert.EqualValues(t, 19.99, dest.Fields["total"])
}

func TestEngineProjectSchemaMissingOptionalFieldIsExplicitNull(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "orders.events", Offset: 8, Value: []byte(`{"order":{"id":3,"total":5}}`)}

	dest, err := e.Transform(context.Background(), tableMapping(), rec)
	require.NoError(t, err)
	val, ok := dest.Fields["customer_name"]
	assert.True(t, ok, "missing non-required field must still be present as an explicit null")
	assert.Nil(t, val)
}

func TestEngineUnknownLogicalTypeIsFatalConfig(t *testing.T) {
	e := NewEngine()
	m := tableMapping()
	m.SchemaFields = []connect.FieldMapping{
		{SourcePath: "order.id", Destination: "order_id", Type: "not-a-real-type", Required: true},
	}
	rec := connect.Record{Topic: "orders.events", Offset: 9, Value: []byte(`{"order":{"id":1}}`)}

	_, err := e.Transform(context.Background(), m, rec)
	require.Error(t, err)
	assert.True(t, connect.AsKind(err, connect.KindConfig))
}

func TestEngineProjectSchemaMissingRequiredFieldIsInvalidData(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "orders.events", Offset: 6, Value: []byte(`{"order":{"total":19.99}}`)}

	_, err := e.Transform(context.Background(), tableMapping(), rec)
	require.Error(t, err)
	assert.True(t, connect.AsKind(err, connect.KindInvalidData))
}

func TestEngineNonJSONRecordUsesBase64Envelope(t *testing.T) {
	e := NewEngine()
	m := documentMapping()
	raw := []byte("not json at all")
	rec := connect.Record{Topic: "profiles.events", Offset: 7, Value: raw}

	dest, err := e.Transform(context.Background(), m, rec)
	require.NoError(t, err)
	assert.Equal(t, "base64", dest.Fields["encoding"])
	assert.EqualValues(t, len(raw), dest.Fields["size"])
	decoded, err := base64.StdEncoding.DecodeString(dest.Fields["data"].(string))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func documentMapping() *connect.Mapping {
	return &connect.Mapping{
		Name:                  "profiles",
		SourceTopic:           "profiles.events",
		DestinationRef:        "mongo/profiles",
		DestinationType:       connect.DestinationDocument,
		BatchSize:             10,
		FlushIntervalMs:       1000,
		IncludeSourceMetadata: true,
	}
}

func TestEngineFlattenNestedObjectsAndArrays(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "profiles.events", Offset: 1, Value: []byte(`{
		"user": {"name": "Grace", "tags": ["eng", "lead"], "address": null},
		"scores": [1, 2, 3]
	}`)}

	dest, err := e.Transform(context.Background(), documentMapping(), rec)
	require.NoError(t, err)
	assert.Equal(t, "Grace", dest.Fields["user.name"])
	assert.ElementsMatch(t, []interface{}{"eng", "lead"}, dest.Fields["user.tags"])
	assert.ElementsMatch(t, []interface{}{float64(1), float64(2), float64(3)}, dest.Fields["scores"])
	_, hasAddress := dest.Fields["user.address"]
	assert.False(t, hasAddress, "null fields must be elided, not written as nil")
}

func vectorMapping() *connect.Mapping {
	return &connect.Mapping{
		Name:            "embeddings",
		SourceTopic:     "embeddings.events",
		DestinationRef:  "qdrant/embeddings",
		DestinationType: connect.DestinationVector,
		BatchSize:       10,
		FlushIntervalMs: 1000,
		VectorDimension: 3,
		VectorFieldPath: "embedding",
	}
}

func TestEngineVectorExtractionWithExplicitID(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "embeddings.events", Offset: 1, Value: []byte(`{"id": 7, "embedding": [0.1, 0.2, 0.3]}`)}

	dest, err := e.Transform(context.Background(), vectorMapping(), rec)
	require.NoError(t, err)
	assert.EqualValues(t, 7, dest.PointID)
	require.Len(t, dest.Vector, 3)
}

func TestEngineVectorExtractionHashesMissingID(t *testing.T) {
	e := NewEngine()
	rec1 := connect.Record{Topic: "embeddings.events", Offset: 9, Value: []byte(`{"embedding": [0.1, 0.2, 0.3]}`)}
	rec2 := connect.Record{Topic: "embeddings.events", Offset: 9, Value: []byte(`{"embedding": [0.4, 0.5, 0.6]}`)}

	d1, err := e.Transform(context.Background(), vectorMapping(), rec1)
	require.NoError(t, err)
	d2, err := e.Transform(context.Background(), vectorMapping(), rec2)
	require.NoError(t, err)

	assert.Equal(t, d1.PointID, d2.PointID, "same topic:offset must hash to the same point id so retries upsert idempotently")
}

func TestEngineTabularMetadataInjectionOnlyWhenOptedIn(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "orders.events", Offset: 1, Value: []byte(`{"order":{"id":1,"total":1}}`)}

	m := tableMapping()
	dest, err := e.Transform(context.Background(), m, rec)
	require.NoError(t, err)
	_, present := dest.Fields["_source_metadata"]
	assert.False(t, present, "metadata must not be injected unless include_source_metadata is set")

	m.IncludeSourceMetadata = true
	dest, err = e.Transform(context.Background(), m, rec)
	require.NoError(t, err)
	meta, ok := dest.Fields["_source_metadata"].(string)
	require.True(t, ok, "tabular metadata must be a JSON-string column, not a nested map")
	assert.Contains(t, meta, "orders.events")
}

func TestEngineVectorDimensionMismatchIsInvalidData(t *testing.T) {
	e := NewEngine()
	rec := connect.Record{Topic: "embeddings.events", Offset: 1, Value: []byte(`{"embedding": [0.1, 0.2]}`)}

	_, err := e.Transform(context.Background(), vectorMapping(), rec)
	require.Error(t, err)
	assert.True(t, connect.AsKind(err, connect.KindInvalidData))
}

func TestMetadataInjectionIncludesOriginFields(t *testing.T) {
	e := NewEngine()
	ts := time.Now()
	rec := connect.Record{Topic: "profiles.events", Partition: 2, Offset: 11, Timestamp: ts, Value: []byte(`{"a":1}`)}

	dest, err := e.Transform(context.Background(), documentMapping(), rec)
	require.NoError(t, err)
	assert.Equal(t, "profiles.events", dest.Fields["_origin_topic"])
	assert.EqualValues(t, 2, dest.Fields["_origin_partition"])
	assert.EqualValues(t, 11, dest.Fields["_origin_offset"])
}
