package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetTickerSnapshot subscribes to the ticker topic for isin and returns the
// current bid/ask. Grounded on the reference's GetInstrumentPrice, adapted
// from a cached REST call to a one-shot subscribe-and-wait.
func (c *Client) GetTickerSnapshot(ctx context.Context, isin string) (*TickerSnapshot, error) {
	payload := map[string]interface{}{"id": isin}

	validate := func(raw json.RawMessage) (*TickerSnapshot, error) {
		var snap TickerSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse ticker response: %w", err)
		}
		return &snap, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "ticker", payload, validate, 0)
}

// GetAggregateHistory subscribes to the aggregateHistory topic for isin at
// the given resolution ("1d", "1h", ...) and range ("1y", "max", ...).
// Grounded on the reference's GetHistoricalData, adapted from its 1-hour
// in-memory cache (there is no caching requirement in this spec; every call
// is a fresh subscribe-and-wait) to a direct core call.
func (c *Client) GetAggregateHistory(ctx context.Context, isin, resolution, range_ string) (*AggregateHistory, error) {
	payload := map[string]interface{}{
		"id":         isin,
		"resolution": resolution,
		"range":      range_,
	}

	validate := func(raw json.RawMessage) (*AggregateHistory, error) {
		var hist AggregateHistory
		if err := json.Unmarshal(raw, &hist); err != nil {
			return nil, fmt.Errorf("failed to parse aggregateHistory response: %w", err)
		}
		return &hist, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "aggregateHistory", payload, validate, 0)
}
