package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	received map[string]interface{}
	response map[string]interface{}
	err      error
	delay    time.Duration
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.received = data
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.response, f.err
}

func TestRazorpayProcessorCreatesOrder(t *testing.T) {
	orders := &fakeOrders{response: map[string]interface{}{
		"id":       "order_123",
		"amount":   float64(49900),
		"currency": "INR",
		"status":   "created",
	}}
	processor := newRazorpayProcessor(orders, "rzp_test", zerolog.Nop())

	order, err := processor.CreateOrder(context.Background(), OrderRequest{
		AmountMinorUnits: 49900,
		Currency:         "INR",
		Receipt:          "task_abc",
		Notes:            map[string]string{"task_id": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, Order{ID: "order_123", Amount: 49900, Currency: "INR", Status: "created"}, order)
	require.Equal(t, int64(49900), orders.received["amount"])
	require.Equal(t, "task_abc", orders.received["receipt"])
	require.Equal(t, map[string]interface{}{"task_id": "abc"}, orders.received["notes"])
	require.Equal(t, "rzp_test", processor.KeyID())
}

func TestRazorpayProcessorPropagatesErrors(t *testing.T) {
	processor := newRazorpayProcessor(&fakeOrders{err: errors.New("bad credentials")}, "rzp_test", zerolog.Nop())
	_, err := processor.CreateOrder(context.Background(), OrderRequest{AmountMinorUnits: 1, Currency: "INR"})
	require.ErrorContains(t, err, "bad credentials")

	processor = newRazorpayProcessor(&fakeOrders{response: map[string]interface{}{}}, "rzp_test", zerolog.Nop())
	_, err = processor.CreateOrder(context.Background(), OrderRequest{AmountMinorUnits: 1, Currency: "INR"})
	require.ErrorContains(t, err, "missing order id")
}

func TestRazorpayProcessorHonoursContextDeadline(t *testing.T) {
	orders := &fakeOrders{delay: 200 * time.Millisecond, response: map[string]interface{}{"id": "order_late"}}
	processor := newRazorpayProcessor(orders, "rzp_test", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := processor.CreateOrder(ctx, OrderRequest{AmountMinorUnits: 1, Currency: "INR"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRazorpayProcessorRequiresCredentials(t *testing.T) {
	_, err := NewRazorpayProcessor(RazorpayConfig{KeyID: "rzp_test"})
	require.Error(t, err)
}
