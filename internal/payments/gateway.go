package payments

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// GatewayOrder is the provider-side order created ahead of checkout.
type GatewayOrder struct {
	OrderID     string
	AmountMinor int64
	Currency    string
}

// Gateway abstracts the payment provider so the service can be tested
// without network calls.
type Gateway interface {
	CreateOrder(amountMinor int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error)
}

type razorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(keyID, keySecret string) Gateway {
	return &razorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

func (g *razorpayGateway) CreateOrder(amountMinor int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("create provider order: %w", err)
	}

	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return nil, fmt.Errorf("provider order response missing id")
	}

	return &GatewayOrder{
		OrderID:     orderID,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}
