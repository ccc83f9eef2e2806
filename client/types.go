package traderepublic

// Instrument is a single search result from the neonSearch topic.
type Instrument struct {
	ISIN     string `json:"isin"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Quote is one side of a ticker snapshot.
type Quote struct {
	Price float64 `json:"price"`
}

// TickerSnapshot is the decoded response of the ticker topic.
type TickerSnapshot struct {
	Bid Quote `json:"bid"`
	Ask Quote `json:"ask"`
}

// Candle is a single OHLC bar from an aggregate history response.
type Candle struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"time"`
}

// AggregateHistory is the decoded response of the aggregateHistory topic.
// Non-goal: no technical-indicator math is performed over Candles here; that
// is left entirely to whatever consumes this slice.
type AggregateHistory struct {
	Resolution string   `json:"resolution"`
	Candles    []Candle `json:"aggregates"`
}

// CashPosition is a single currency balance from the cash topic.
type CashPosition struct {
	Currency string  `json:"currencyId"`
	Amount   float64 `json:"amount"`
}

// Portfolio is the decoded response of the compactPortfolio topic.
type Portfolio struct {
	Positions []PortfolioPosition `json:"positions"`
}

// PortfolioPosition is a single holding within a Portfolio.
type PortfolioPosition struct {
	ISIN         string  `json:"instrumentId"`
	NetSize      float64 `json:"netSize"`
	AveragePrice float64 `json:"averageBuyIn"`
}

// OrderRequest is the caller-facing shape for placing a new order, converted
// into the simpleCreateOrder topic's payload.
type OrderRequest struct {
	ISIN       string  `json:"isin"`
	Type       string  `json:"type"` // "buy" or "sell"
	Size       float64 `json:"size"`
	LimitPrice float64 `json:"limitPrice,omitempty"`
}

// OrderConfirmation is the decoded response of the simpleCreateOrder topic.
type OrderConfirmation struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}
