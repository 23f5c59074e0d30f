package distributor

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuseats/internal/models"
	"campuseats/internal/monitoring"
	"campuseats/internal/push"
)

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu       sync.Mutex
	payloads map[string][]push.Payload
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{payloads: make(map[string][]push.Payload)}
}

func (n *recordingNotifier) Notify(_ context.Context, recipient string, payload push.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads[recipient] = append(n.payloads[recipient], payload)
	return nil
}

func (n *recordingNotifier) sent(recipient string) []push.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.payloads[recipient]
}

func testDistributor(t *testing.T) (*Distributor, *recordingNotifier, *MemoryPresence) {
	t.Helper()
	notifier := newRecordingNotifier()
	presence := NewMemoryPresence()
	dist := New(notifier, presence, monitoring.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	return dist, notifier, presence
}

func readyOrder() *models.Order {
	return &models.Order{
		ID:          "order-1",
		CanteenID:   "canteen-1",
		CustomerID:  "customer-1",
		OrderStatus: models.OrderStatusReady,
		Version:     3,
	}
}

func TestPublishFansOutToKitchenAndCustomer(t *testing.T) {
	dist, notifier, _ := testDistributor(t)

	kitchen := dist.SubscribeCanteen("canteen-1")
	defer kitchen.Cancel()
	customer := dist.SubscribeOrder("order-1")
	defer customer.Cancel()
	otherCanteen := dist.SubscribeCanteen("canteen-2")
	defer otherCanteen.Cancel()

	order := readyOrder()
	dist.Publish(order, models.OrderStatusPreparing)

	for name, sub := range map[string]*Subscription{"kitchen": kitchen, "customer": customer} {
		select {
		case event := <-sub.C:
			assert.Equal(t, "order-1", event.OrderID, name)
			assert.Equal(t, models.OrderStatusPreparing, event.Previous, name)
			assert.Equal(t, models.OrderStatusReady, event.Status, name)
			assert.Equal(t, int64(3), event.Version, name)
		default:
			t.Fatalf("%s subscriber did not receive the event", name)
		}
	}

	select {
	case <-otherCanteen.C:
		t.Fatal("unrelated canteen must not receive the event")
	default:
	}

	require.Len(t, notifier.sent("customer-1"), 1)
	assert.Equal(t, "Order Ready for Pickup!", notifier.sent("customer-1")[0].Title)
}

func TestCancelledSubscriberReceivesNothing(t *testing.T) {
	dist, _, _ := testDistributor(t)

	sub := dist.SubscribeCanteen("canteen-1")
	sub.Cancel()
	sub.Cancel() // idempotent

	dist.Publish(readyOrder(), models.OrderStatusPreparing)

	_, open := <-sub.C
	assert.False(t, open, "cancelled subscription channel should be closed")
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	dist, _, _ := testDistributor(t)

	sub := dist.SubscribeCanteen("canteen-1")
	defer sub.Cancel()

	// Never drained: once the buffer is full further events are dropped
	// rather than blocking the committing writer.
	order := readyOrder()
	for i := 0; i < subscriberBuffer*2; i++ {
		dist.Publish(order, models.OrderStatusPreparing)
	}

	assert.Len(t, sub.C, subscriberBuffer)
}

func TestPushSuppressedOnStaffSurface(t *testing.T) {
	dist, notifier, presence := testDistributor(t)

	require.NoError(t, presence.SetActiveRoutes(context.Background(), "customer-1", []string{"/canteen/orders"}))

	dist.Publish(readyOrder(), models.OrderStatusPreparing)
	assert.Empty(t, notifier.sent("customer-1"), "push must be withheld while on a staff surface")

	// Presence cleared: the next transition notifies again.
	require.NoError(t, presence.SetActiveRoutes(context.Background(), "customer-1", nil))
	dist.Publish(readyOrder(), models.OrderStatusPreparing)
	assert.Len(t, notifier.sent("customer-1"), 1)
}

func TestViewingStaffSurface(t *testing.T) {
	cases := []struct {
		routes []string
		want   bool
	}{
		{nil, false},
		{[]string{"/menu", "/orders/track/42"}, false},
		{[]string{"/canteen/orders"}, true},
		{[]string{"/admin/dashboard"}, true},
		{[]string{"/menu", "/canteen"}, true},
	}

	for _, tc := range cases {
		if got := ViewingStaffSurface(tc.routes); got != tc.want {
			t.Errorf("ViewingStaffSurface(%v) = %v, want %v", tc.routes, got, tc.want)
		}
	}
}
