package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEncodeCompressesLargeChangeSets(t *testing.T) {
	svc, err := NewAuditService(nil)
	require.NoError(t, err)
	defer svc.Close()

	small := []byte(`{"after":{"documentId":"D1"}}`)
	var entry AuditEntry
	svc.encode(&entry, small)
	assert.Equal(t, CompressionNone, entry.CompressionAlgo)
	assert.Equal(t, json.RawMessage(small), entry.Changes)
	assert.Nil(t, entry.ChangesCompressed)

	large, err := json.Marshal(map[string]string{"notes": string(bytes.Repeat([]byte("a"), DefaultCompressThreshold))})
	require.NoError(t, err)
	entry = AuditEntry{}
	svc.encode(&entry, large)
	assert.Equal(t, CompressionZstd, entry.CompressionAlgo)
	assert.Nil(t, entry.Changes)
	assert.Less(t, len(entry.ChangesCompressed), len(large))

	require.NoError(t, svc.decode(&entry))
	assert.Equal(t, json.RawMessage(large), entry.Changes)
	assert.Nil(t, entry.ChangesCompressed)
}

func TestAuditDecodeRejectsCorruptPayload(t *testing.T) {
	svc, err := NewAuditService(nil)
	require.NoError(t, err)
	defer svc.Close()

	entry := AuditEntry{CompressionAlgo: CompressionZstd, ChangesCompressed: []byte("not zstd")}
	assert.Error(t, svc.decode(&entry))
}
