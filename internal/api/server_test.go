package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuseats/internal/database"
	"campuseats/internal/distributor"
	"campuseats/internal/fulfillment"
	"campuseats/internal/models"
	"campuseats/internal/monitoring"
	"campuseats/internal/push"
	"campuseats/internal/qr"
	"campuseats/internal/store"
)

type recordingNotifier struct {
	mu       sync.Mutex
	payloads map[string][]push.Payload
}

func (n *recordingNotifier) Notify(_ context.Context, recipient string, payload push.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads[recipient] = append(n.payloads[recipient], payload)
	return nil
}

func (n *recordingNotifier) sent(recipient string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads[recipient])
}

type testEnv struct {
	server   *Server
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	notifier := &recordingNotifier{payloads: make(map[string][]push.Payload)}
	presence := distributor.NewMemoryPresence()
	orderStore := store.NewOrderStore(db, log)
	dist := distributor.New(notifier, presence, metrics, log)
	machine := fulfillment.NewMachine(orderStore, dist, metrics, log)
	codec := qr.NewCodec("test-secret")
	verifier := qr.NewVerifier(orderStore, machine, codec, metrics, log)

	return &testEnv{
		server:   NewServer(orderStore, machine, verifier, dist, presence, codec, log),
		notifier: notifier,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	return order
}

func (e *testEnv) createOrder(t *testing.T) models.Order {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"canteenId":  "canteen-1",
		"customerId": "customer-1",
		"orderType":  "NOW",
		"items": []gin.H{
			{"menuItemId": "m1", "name": "Veg Thali", "unitPrice": 120, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeOrder(t, w)
}

func (e *testEnv) payOrder(t *testing.T, orderID string) models.Order {
	t.Helper()

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/payment", gin.H{
		"status": "succeeded",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeOrder(t, w)
}

func TestOrderLifecycle(t *testing.T) {
	e := newTestEnv(t)

	created := e.createOrder(t)
	assert.Equal(t, models.OrderStatusPending, created.OrderStatus)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, 120.0, created.TotalAmount)
	assert.NotEmpty(t, created.PickupDate)

	paid := e.payOrder(t, created.ID)
	assert.NotEmpty(t, paid.QRToken)
	assert.True(t, strings.HasPrefix(paid.QRCodeBase64, "data:image/png;base64,"))

	// Kitchen marks the order preparing, then ready.
	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preparing := decodeOrder(t, w)
	require.NotNil(t, preparing.PreparedAt)

	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "READY", "expectedVersion": preparing.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ready := decodeOrder(t, w)
	require.NotNil(t, ready.ReadyAt)

	// Staff scans the customer's QR code.
	w = e.do(t, http.MethodPost, "/api/v1/orders/verify-qr", gin.H{
		"scannedData": paid.QRToken, "canteenId": "canteen-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snapshot qr.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, created.ID, snapshot.OrderID)
	assert.Equal(t, ready.Version, snapshot.Version)

	w = e.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/handoff", gin.H{
		"canteenId": "canteen-1", "expectedVersion": snapshot.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decodeOrder(t, w)
	assert.Equal(t, models.OrderStatusCompleted, completed.OrderStatus)
	require.NotNil(t, completed.CompletedAt)

	// The tracker sees the final state on its next poll.
	w = e.do(t, http.MethodGet, "/api/v1/orders/"+created.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "COMPLETED", view["orderStatus"])
	assert.Equal(t, float64(completed.Version), view["version"])
}

func TestTransitionRejectedUntilPaymentSucceeds(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": created.Version,
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PAYMENT_NOT_COMPLETED", body["code"])
	assert.Contains(t, body["error"], "payment")
}

func TestDirectCompletionRejected(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	require.Equal(t, http.StatusOK, w.Code)
	preparing := decodeOrder(t, w)
	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "READY", "expectedVersion": preparing.Version,
	})
	require.Equal(t, http.StatusOK, w.Code)
	ready := decodeOrder(t, w)

	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "COMPLETED", "expectedVersion": ready.Version,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

func TestWrongCanteenRejected(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-2", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStaleVersionRejected(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Same click replayed with the stale version.
	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VERSION_CONFLICT", body["code"])
}

func TestVerifyQRBeforeReady(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPost, "/api/v1/orders/verify-qr", gin.H{
		"scannedData": paid.QRToken, "canteenId": "canteen-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_READY", body["code"])
}

func TestSecondHandoffRejected(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	preparing := decodeOrder(t, w)
	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "READY", "expectedVersion": preparing.Version,
	})
	ready := decodeOrder(t, w)

	w = e.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/handoff", gin.H{
		"canteenId": "canteen-1", "expectedVersion": ready.Version,
	})
	require.Equal(t, http.StatusOK, w.Code)
	completed := decodeOrder(t, w)

	// Second scan of the same code.
	w = e.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/handoff", gin.H{
		"canteenId": "canteen-1", "expectedVersion": completed.Version,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ALREADY_COMPLETED", body["code"])
}

func TestPushSuppressionDoesNotAffectPolling(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	paid := e.payOrder(t, created.ID)

	// The customer (a canteen owner) is looking at their own orders view.
	w := e.do(t, http.MethodPut, "/api/v1/presence/customer-1", gin.H{
		"routes": []string{"/canteen/orders"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/status?canteenId=canteen-1", gin.H{
		"status": "PREPARING", "expectedVersion": paid.Version,
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, e.notifier.sent("customer-1"), "push must be suppressed")

	// The polling gateway still reflects the new status immediately.
	w = e.do(t, http.MethodGet, "/api/v1/orders/"+created.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "PREPARING", view["orderStatus"])
}

func TestCanteenOrdersFilter(t *testing.T) {
	e := newTestEnv(t)

	paidOrder := e.createOrder(t)
	e.payOrder(t, paidOrder.ID)
	e.createOrder(t) // unpaid

	w := e.do(t, http.MethodGet, "/api/v1/orders/canteen/canteen-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	w = e.do(t, http.MethodGet, "/api/v1/orders/canteen/canteen-1?paymentStatus=succeeded", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var succeeded []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &succeeded))
	require.Len(t, succeeded, 1)
	assert.Equal(t, paidOrder.ID, succeeded[0].ID)
}

func TestCreateOrderValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing items", gin.H{"canteenId": "c1", "customerId": "u1", "orderType": "NOW"}},
		{"missing ids", gin.H{"orderType": "NOW", "items": []gin.H{{"name": "x", "quantity": 1}}}},
		{"bad order type", gin.H{"canteenId": "c1", "customerId": "u1", "orderType": "SOON", "items": []gin.H{{"name": "x", "quantity": 1}}}},
		{"scheduled without time", gin.H{"canteenId": "c1", "customerId": "u1", "orderType": "LATER", "items": []gin.H{{"name": "x", "quantity": 1}}}},
		{"zero quantity", gin.H{"canteenId": "c1", "customerId": "u1", "orderType": "NOW", "items": []gin.H{{"name": "x", "quantity": 0}}}},
	}

	for _, tc := range cases {
		w := e.do(t, http.MethodPost, "/api/v1/orders", tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.name)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s/status", "missing"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentWebhookIsOneShot(t *testing.T) {
	e := newTestEnv(t)
	created := e.createOrder(t)
	e.payOrder(t, created.ID)

	w := e.do(t, http.MethodPatch, "/api/v1/orders/"+created.ID+"/payment", gin.H{"status": "failed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PAYMENT_SETTLED", body["code"])
}
