package traderepublic

import (
	"context"
	"encoding/json"
	"fmt"
)

// PlaceOrder subscribes to the simpleCreateOrder topic with req converted
// into its wire shape and returns the confirmation. Grounded on the
// reference's PlaceOrder/convertToSaxoOrder pair.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderConfirmation, error) {
	if req.ISIN == "" {
		return nil, &ConfigError{Message: "order request missing isin"}
	}

	payload := map[string]interface{}{
		"instrumentId": req.ISIN,
		"orderType":    req.Type,
		"size":         req.Size,
	}
	if req.LimitPrice > 0 {
		payload["limitPrice"] = req.LimitPrice
	}

	validate := func(raw json.RawMessage) (*OrderConfirmation, error) {
		var conf OrderConfirmation
		if err := json.Unmarshal(raw, &conf); err != nil {
			return nil, fmt.Errorf("failed to parse simpleCreateOrder response: %w", err)
		}
		return &conf, nil
	}

	return SubscribeAndWait(ctx, c.Corr, "simpleCreateOrder", payload, validate, 0)
}

// CancelOrder subscribes to the cancelOrder topic for orderID. Grounded on
// the reference's DeleteOrder.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return &ConfigError{Message: "cancel order request missing orderId"}
	}

	payload := map[string]interface{}{"orderId": orderID}

	validate := func(raw json.RawMessage) (struct{}, error) {
		return struct{}{}, nil
	}

	_, err := SubscribeAndWait(ctx, c.Corr, "cancelOrder", payload, validate, 0)
	return err
}
