package payment

import "context"

// OrderRequest describes an order to be opened with the payment processor.
type OrderRequest struct {
	AmountMinorUnits int64
	Currency         string
	Receipt          string
	Notes            map[string]string
}

// Order is the processor's view of a created order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// Processor creates payment orders against an external payment processor.
type Processor interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}
