package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMapping(name, topic string) *Mapping {
	return &Mapping{
		Name:            name,
		SourceTopic:     topic,
		DestinationRef:  "ref/" + name,
		DestinationType: DestinationTable,
		BatchSize:       100,
		FlushIntervalMs: 1000,
	}
}

func TestMappingValidate(t *testing.T) {
	m := validMapping("orders", "orders.events")
	require.NoError(t, m.Validate())

	bad := *m
	bad.BatchSize = 0
	assert.True(t, AsKind(bad.Validate(), KindConfig))

	badVec := *m
	badVec.DestinationType = DestinationVector
	assert.True(t, AsKind(badVec.Validate(), KindConfig), "vector destination without dimension must fail validation")
}

func TestMappingEffectiveWritePolicyDefaultsToAppend(t *testing.T) {
	m := validMapping("orders", "orders.events")
	assert.Equal(t, WriteAppend, m.EffectiveWritePolicy())

	m.WritePolicy = WriteOverwrite
	assert.Equal(t, WriteOverwrite, m.EffectiveWritePolicy())
}

func TestMappingValidateRejectsUnknownWritePolicy(t *testing.T) {
	m := validMapping("orders", "orders.events")
	m.WritePolicy = "replace-in-place"
	assert.True(t, AsKind(m.Validate(), KindConfig))
}

func TestRegistryRejectsDuplicateTopicAndName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(validMapping("orders", "orders.events")))

	err := r.Add(validMapping("orders-dup", "orders.events"))
	require.Error(t, err)
	assert.True(t, AsKind(err, KindConfig))

	err = r.Add(validMapping("orders", "other.topic"))
	require.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	m := validMapping("orders", "orders.events")
	require.NoError(t, r.Add(m))

	got, ok := r.LookupByTopic("orders.events")
	require.True(t, ok)
	assert.Equal(t, "orders", got.Name)

	_, ok = r.LookupByTopic("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"orders.events"}, r.Topics())
}
