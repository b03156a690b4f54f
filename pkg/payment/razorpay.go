package payment

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/rs/zerolog"
)

// RazorpayConfig holds the credentials used to talk to Razorpay.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Logger    zerolog.Logger
}

type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProcessor implements Processor with the official Razorpay SDK.
type RazorpayProcessor struct {
	orders orderCreator
	keyID  string
	logger zerolog.Logger
}

// NewRazorpayProcessor constructs a processor from explicit credentials.
func NewRazorpayProcessor(cfg RazorpayConfig) (*RazorpayProcessor, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}

	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return newRazorpayProcessor(client.Order, cfg.KeyID, cfg.Logger), nil
}

func newRazorpayProcessor(orders orderCreator, keyID string, logger zerolog.Logger) *RazorpayProcessor {
	return &RazorpayProcessor{
		orders: orders,
		keyID:  keyID,
		logger: logger.With().Str("component", "razorpay_processor").Logger(),
	}
}

// KeyID returns the public key identifier the checkout widget needs.
func (p *RazorpayProcessor) KeyID() string {
	return p.keyID
}

// CreateOrder opens an order. The SDK call is not context aware, so the
// context only bounds how long the caller waits for it.
func (p *RazorpayProcessor) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	data := map[string]interface{}{
		"amount":   req.AmountMinorUnits,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for key, value := range req.Notes {
			notes[key] = value
		}
		data["notes"] = notes
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := p.orders.Create(data, nil)
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return Order{}, fmt.Errorf("razorpay create order: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return Order{}, fmt.Errorf("razorpay create order: %w", res.err)
		}
		return decodeOrder(res.body)
	}
}

func decodeOrder(body map[string]interface{}) (Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, errors.New("razorpay create order: response missing order id")
	}

	order := Order{ID: id}
	order.Currency, _ = body["currency"].(string)
	order.Status, _ = body["status"].(string)
	switch amount := body["amount"].(type) {
	case float64:
		order.Amount = int64(amount)
	case int64:
		order.Amount = amount
	case int:
		order.Amount = int64(amount)
	}
	return order, nil
}
