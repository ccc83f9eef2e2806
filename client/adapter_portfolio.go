package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetPortfolio subscribes to the compactPortfolio topic and returns the
// current set of holdings. Grounded on the reference's GetOpenPositions,
// adapted from Saxo's REST/convert pattern to subscribe-and-wait.
func (c *Client) GetPortfolio(ctx context.Context) (*Portfolio, error) {
	validate := func(raw json.RawMessage) (*Portfolio, error) {
		var p Portfolio
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to parse compactPortfolio response: %w", err)
		}
		return &p, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "compactPortfolio", nil, validate, 0)
}

// GetCash subscribes to the cash topic and returns every currency balance.
// Grounded on the reference's GetAccountBalance.
func (c *Client) GetCash(ctx context.Context) ([]CashPosition, error) {
	validate := func(raw json.RawMessage) ([]CashPosition, error) {
		var positions []CashPosition
		if err := json.Unmarshal(raw, &positions); err != nil {
			return nil, fmt.Errorf("failed to parse cash response: %w", err)
		}
		return positions, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "cash", nil, validate, 0)
}
