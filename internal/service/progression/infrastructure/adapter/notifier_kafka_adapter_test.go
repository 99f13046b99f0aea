// internal/service/progression/infrastructure/adapter/notifier_kafka_adapter_test.go
package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcadia/internal/service/progression/domain"
)

func TestDecodeEnvelope(t *testing.T) {
	payload, err := json.Marshal(domain.LevelUpEvent{UserID: "user-1", NewLevel: 2, CoinsEarned: 5000, TotalCoins: 5000})
	require.NoError(t, err)
	value, err := json.Marshal(envelope{Type: domain.EventTypeLevelUp, Payload: payload})
	require.NoError(t, err)

	eventType, decoded, err := DecodeEnvelope(value)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeLevelUp, eventType)

	var event domain.LevelUpEvent
	require.NoError(t, json.Unmarshal(decoded, &event))
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, 2, event.NewLevel)
}

func TestDecodeEnvelope_Garbage(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)
}
