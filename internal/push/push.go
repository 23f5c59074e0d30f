package push

import (
	"context"

	"github.com/rs/zerolog"

	"campuseats/internal/models"
)

// Payload is the notification handed to the delivery transport.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Notifier is the delivery capability supplied by the transport
// collaborator. Delivery is best effort; the polling gateway is the
// consistency backstop.
type Notifier interface {
	Notify(ctx context.Context, recipient string, payload Payload) error
}

// StatusPayload builds the notification for an accepted transition.
func StatusPayload(order *models.Order) Payload {
	var title, body string
	switch order.OrderStatus {
	case models.OrderStatusPreparing:
		title = "Order Being Prepared"
		body = "Your order is now being prepared!"
	case models.OrderStatusReady:
		title = "Order Ready for Pickup!"
		body = "Your order is ready! Head over to pick it up."
	case models.OrderStatusCompleted:
		title = "Order Complete"
		body = "Your order has been completed. Enjoy your meal!"
	default:
		title = "Order Update"
		body = "Your order status has been updated to " + string(order.OrderStatus)
	}

	return Payload{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"orderId": order.ID,
			"status":  string(order.OrderStatus),
			"type":    "ORDER_STATUS_UPDATE",
		},
	}
}

// LogNotifier is the default transport: it records the notification and
// drops it. Deployments plug a real push service in its place.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, recipient string, payload Payload) error {
	n.Log.Info().
		Str("recipient", recipient).
		Str("title", payload.Title).
		Str("orderId", payload.Data["orderId"]).
		Msg("push notification")
	return nil
}
