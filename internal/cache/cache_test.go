package cache

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamKey(t *testing.T) {
	id := uuid.MustParse("9b2f6c1e-7d3a-4c55-8e1f-2a6b9d0c4e77")
	assert.Equal(t, "table:9b2f6c1e-7d3a-4c55-8e1f-2a6b9d0c4e77:actions", StreamKey(id))
}

func TestDecodeRecord(t *testing.T) {
	rec := TableActionRecord{
		TableID:       uuid.New(),
		ActionIndex:   3,
		ActorID:       uuid.New(),
		ActionType:    "die_roll",
		ActionPayload: map[string]interface{}{"id": float64(7)},
		Timestamp:     1700000000000,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	got, err := decodeRecord(map[string]interface{}{"record": string(data)})
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got, err = decodeRecord(map[string]interface{}{"record": data})
	require.NoError(t, err)
	assert.Equal(t, rec.ActionType, got.ActionType)

	_, err = decodeRecord(map[string]interface{}{})
	assert.Error(t, err)
	_, err = decodeRecord(map[string]interface{}{"record": 12})
	assert.Error(t, err)
	_, err = decodeRecord(map[string]interface{}{"record": "{"})
	assert.Error(t, err)
}
