package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndDrainPreservesOrder(t *testing.T) {
	b := NewBuffer()

	for i := 0; i < 3; i++ {
		size := b.Append(Destination{Ref: "t", Fields: map[string]interface{}{"i": i}}, Record{Offset: int64(i)})
		assert.Equal(t, i+1, size)
	}

	items, recs := b.Drain()
	require.Len(t, items, 3)
	require.Len(t, recs, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, items[i].Fields["i"])
		assert.Equal(t, int64(i), recs[i].Offset)
	}

	assert.Equal(t, 0, b.Len())
}

func TestBufferDrainEmptyReturnsNil(t *testing.T) {
	b := NewBuffer()
	items, recs := b.Drain()
	assert.Nil(t, items)
	assert.Nil(t, recs)
}

func TestBufferRequeuePrependsInOrder(t *testing.T) {
	b := NewBuffer()
	b.Append(Destination{Ref: "t", Fields: map[string]interface{}{"i": 2}}, Record{Offset: 2})

	batch := []Destination{{Ref: "t", Fields: map[string]interface{}{"i": 0}}, {Ref: "t", Fields: map[string]interface{}{"i": 1}}}
	recs := []Record{{Offset: 0}, {Offset: 1}}
	b.Requeue(batch, recs)

	items, gotRecs := b.Drain()
	require.Len(t, items, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, items[i].Fields["i"])
		assert.Equal(t, int64(i), gotRecs[i].Offset)
	}
}
