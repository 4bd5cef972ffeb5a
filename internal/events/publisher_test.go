package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemiser/tradengine/internal/model"
)

func TestBuildResultMessage_RoundTripsTradeRunResult(t *testing.T) {
	result := model.TradeRunResult{
		Success:       true,
		CorrelationID: "run-123",
	}

	msg, err := buildResultMessage(result)
	require.NoError(t, err)
	require.NotEmpty(t, msg.UUID)

	var decoded model.TradeRunResult
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, result.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, result.Success, decoded.Success)
}

func TestNoopPublisher_DiscardsWithoutPanicking(t *testing.T) {
	p := NoopPublisher{}
	p.PublishRunResult(context.Background(), model.TradeRunResult{CorrelationID: "run-456"})
	assert.NoError(t, p.Close())
}
