package distributor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campuseats/internal/models"
	"campuseats/internal/monitoring"
	"campuseats/internal/push"
)

const subscriberBuffer = 16

// Event describes one committed fulfillment transition.
type Event struct {
	OrderID    string             `json:"orderId"`
	CanteenID  string             `json:"canteenId"`
	CustomerID string             `json:"customerId"`
	Previous   models.OrderStatus `json:"previousStatus"`
	Status     models.OrderStatus `json:"orderStatus"`
	Version    int64              `json:"version"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Subscription is a cancellable event feed. Cancel closes the channel and
// detaches the subscriber; it is safe to call more than once.
type Subscription struct {
	C      <-chan Event
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Distributor fans committed transitions out to kitchen subscribers (per
// canteen), customer subscribers (per order) and the push channel (per
// customer). Delivery is lossy: a subscriber that cannot keep up has
// events dropped rather than blocking the writer, and every subscriber
// also has the polling gateway as a consistency backstop.
type Distributor struct {
	mu       sync.RWMutex
	canteens map[string]map[chan Event]struct{}
	orders   map[string]map[chan Event]struct{}

	notifier push.Notifier
	presence PresenceRegistry
	metrics  *monitoring.Metrics
	log      zerolog.Logger
}

func New(notifier push.Notifier, presence PresenceRegistry, metrics *monitoring.Metrics, log zerolog.Logger) *Distributor {
	return &Distributor{
		canteens: make(map[string]map[chan Event]struct{}),
		orders:   make(map[string]map[chan Event]struct{}),
		notifier: notifier,
		presence: presence,
		metrics:  metrics,
		log:      log.With().Str("component", "distributor").Logger(),
	}
}

// SubscribeCanteen attaches a kitchen-side subscriber for one canteen.
func (d *Distributor) SubscribeCanteen(canteenID string) *Subscription {
	return d.subscribe(d.canteens, canteenID)
}

// SubscribeOrder attaches a customer-side subscriber for one order.
func (d *Distributor) SubscribeOrder(orderID string) *Subscription {
	return d.subscribe(d.orders, orderID)
}

func (d *Distributor) subscribe(topics map[string]map[chan Event]struct{}, key string) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	d.mu.Lock()
	subs, ok := topics[key]
	if !ok {
		subs = make(map[chan Event]struct{})
		topics[key] = subs
	}
	subs[ch] = struct{}{}
	d.mu.Unlock()
	d.metrics.ActiveSubscribers.Inc()

	return &Subscription{
		C: ch,
		cancel: func() {
			d.mu.Lock()
			if subs, ok := topics[key]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(topics, key)
				}
			}
			// Closing under the lock keeps Publish from sending on a
			// closed channel.
			close(ch)
			d.mu.Unlock()
			d.metrics.ActiveSubscribers.Dec()
		},
	}
}

// Publish fans out one committed transition. Only the state machine and
// the QR verifier call it, and only after the write has landed.
func (d *Distributor) Publish(order *models.Order, previous models.OrderStatus) {
	event := Event{
		OrderID:    order.ID,
		CanteenID:  order.CanteenID,
		CustomerID: order.CustomerID,
		Previous:   previous,
		Status:     order.OrderStatus,
		Version:    order.Version,
		OccurredAt: time.Now(),
	}

	d.mu.RLock()
	for ch := range d.canteens[order.CanteenID] {
		d.send(ch, event)
	}
	for ch := range d.orders[order.ID] {
		d.send(ch, event)
	}
	d.mu.RUnlock()

	d.notifyCustomer(order)
}

func (d *Distributor) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		d.log.Warn().Str("orderId", event.OrderID).Msg("subscriber buffer full, dropping event")
	}
}

func (d *Distributor) notifyCustomer(order *models.Order) {
	ctx := context.Background()

	routes, err := d.presence.ActiveRoutes(ctx, order.CustomerID)
	if err != nil {
		// Presence is advisory; an unreachable registry must not block
		// the notification.
		d.log.Warn().Err(err).Str("recipient", order.CustomerID).Msg("presence lookup failed")
	}
	if ViewingStaffSurface(routes) {
		d.metrics.PushNotifications.WithLabelValues("suppressed").Inc()
		d.log.Debug().
			Str("recipient", order.CustomerID).
			Str("orderId", order.ID).
			Msg("push suppressed, recipient on staff surface")
		return
	}

	payload := push.StatusPayload(order)
	if err := d.notifier.Notify(ctx, order.CustomerID, payload); err != nil {
		d.metrics.PushNotifications.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).Str("recipient", order.CustomerID).Msg("push delivery failed")
		return
	}
	d.metrics.PushNotifications.WithLabelValues("sent").Inc()
}
