package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestAddFileIncrementsVersion(t *testing.T) {
	m := &manifest{}
	now := time.Unix(1700000000, 0).UTC()

	m.addFile("data/part-00000-1.parquet", 10, 2048, now)
	assert.Equal(t, 1, m.Version)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "data/part-00000-1.parquet", m.Files[0].Path)
	assert.Equal(t, 10, m.Files[0].Rows)

	m.addFile("data/part-00001-2.parquet", 5, 1024, now)
	assert.Equal(t, 2, m.Version)
	assert.Len(t, m.Files, 2)
}

func TestManifestReplaceFileDiscardsPriorEntries(t *testing.T) {
	m := &manifest{}
	now := time.Unix(1700000000, 0).UTC()

	m.addFile("data/part-00000-1.parquet", 10, 2048, now)
	m.replaceFile("data/part-00001-2.parquet", 3, 512, now)

	assert.Equal(t, 2, m.Version)
	require.Len(t, m.Files, 1, "overwrite write_policy must discard previously committed files")
	assert.Equal(t, "data/part-00001-2.parquet", m.Files[0].Path)
}

func TestManifestEncodeDecodeRoundTrips(t *testing.T) {
	m := &manifest{}
	m.addFile("data/part-00000-1.parquet", 10, 2048, time.Unix(1700000000, 0).UTC())

	data, err := m.encode()
	require.NoError(t, err)

	decoded, err := decodeManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m.Version, decoded.Version)
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, m.Files[0].Path, decoded.Files[0].Path)
	assert.Equal(t, m.Files[0].Rows, decoded.Files[0].Rows)
}

func TestDecodeManifestRejectsInvalidJSON(t *testing.T) {
	_, err := decodeManifest([]byte("not json"))
	assert.Error(t, err)
}
