package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
)

// SearchInstruments looks up instruments by free-text query via the
// neonSearch topic, converting the raw Answer into typed Instrument values —
// the same build-payload/call-core/convert-response shape as the reference's
// SearchInstruments, re-pointed at this spec's subscribe-and-wait core
// instead of a REST call.
func (c *Client) SearchInstruments(ctx context.Context, query string) ([]Instrument, error) {
	payload := map[string]interface{}{"q": query}

	validate := func(raw json.RawMessage) ([]Instrument, error) {
		var resp struct {
			Results []Instrument `json:"results"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse neonSearch response: %w", err)
		}
		return resp.Results, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "neonSearch", payload, validate, 0)
}
