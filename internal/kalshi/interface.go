package kalshi

import "context"

// Base URLs for Kalshi's production and demo trading environments.
// cmd/engine picks between them based on Security.UseDemo.
const (
	ProdRESTBaseURL = "https://trading-api.kalshi.com/trade-api/v2"
	ProdWSBaseURL   = "wss://trading-api.kalshi.com/trade-api/ws/v2"
	DemoRESTBaseURL = "https://demo-api.kalshi.co/trade-api/v2"
	DemoWSBaseURL   = "wss://demo-api.kalshi.co/trade-api/ws/v2"
)

// REST is the subset of Kalshi's trading API the engine needs. A real
// implementation lives in httpclient.go; tests substitute a fake.
type REST interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListOpenMarkets(ctx context.Context) ([]MarketSummary, error)
	GetBalance(ctx context.Context) (int64, error)
}

// Feed is the subset of the WebSocket price feed the engine needs. A real
// implementation lives in internal/kalshifeed; tests substitute a fake.
type Feed interface {
	Subscribe(tickers []string) error
	Unsubscribe(tickers []string) error
	Messages() <-chan Message
	Close() error
}
