package fulfillment

import (
	"github.com/rs/zerolog"

	"campuseats/internal/distributor"
	"campuseats/internal/models"
	"campuseats/internal/monitoring"
	"campuseats/internal/store"
	apperrors "campuseats/pkg/errors"
)

// Machine governs the order fulfillment lifecycle. Every orderStatus write
// in the system funnels through it: kitchen staff drive
// PENDING -> PREPARING -> READY through AttemptTransition, and the QR
// verifier commits the final READY -> COMPLETED through CommitHandoff.
// Guards run in a fixed order and any failure aborts the call with nothing
// applied.
type Machine struct {
	store   *store.OrderStore
	dist    *distributor.Distributor
	metrics *monitoring.Metrics
	log     zerolog.Logger
}

func NewMachine(store *store.OrderStore, dist *distributor.Distributor, metrics *monitoring.Metrics, log zerolog.Logger) *Machine {
	return &Machine{
		store:   store,
		dist:    dist,
		metrics: metrics,
		log:     log.With().Str("component", "fulfillment").Logger(),
	}
}

// AttemptTransition applies one staff-requested transition. COMPLETED is
// never reachable here; that path belongs to the QR verifier.
func (m *Machine) AttemptTransition(orderID string, requested models.OrderStatus, requesterCanteenID string, expectedVersion int64) (*models.Order, error) {
	return m.transition(orderID, requested, requesterCanteenID, expectedVersion, false)
}

// CommitHandoff performs the exclusive READY -> COMPLETED transition on
// behalf of the QR verifier. The same compare-and-swap discipline applies,
// so at most one of two racing confirmations wins.
func (m *Machine) CommitHandoff(orderID, requesterCanteenID string, expectedVersion int64) (*models.Order, error) {
	return m.transition(orderID, models.OrderStatusCompleted, requesterCanteenID, expectedVersion, true)
}

func (m *Machine) transition(orderID string, requested models.OrderStatus, requesterCanteenID string, expectedVersion int64, viaHandoff bool) (*models.Order, error) {
	order, err := m.store.GetByID(orderID)
	if err != nil {
		return nil, m.reject(orderID, requested, err)
	}

	if order.CanteenID != requesterCanteenID {
		return nil, m.reject(orderID, requested, apperrors.ErrOwnershipMismatch)
	}
	if order.Version != expectedVersion {
		return nil, m.reject(orderID, requested, apperrors.ErrVersionConflict)
	}
	if order.OrderStatus == models.OrderStatusPending && order.PaymentStatus != models.PaymentSucceeded {
		return nil, m.reject(orderID, requested, apperrors.ErrPaymentNotCompleted)
	}
	if order.OrderStatus == models.OrderStatusCompleted {
		return nil, m.reject(orderID, requested, apperrors.ErrTerminalOrder)
	}
	if requested == models.OrderStatusCompleted && !viaHandoff {
		return nil, m.reject(orderID, requested, apperrors.ErrInvalidTransition)
	}
	next, ok := order.OrderStatus.Next()
	if !ok || requested != next {
		return nil, m.reject(orderID, requested, apperrors.ErrInvalidTransition)
	}

	updated, err := m.store.ApplyTransition(orderID, order.OrderStatus, requested, requesterCanteenID, expectedVersion)
	if err != nil {
		// A concurrent writer can still win between the read above and the
		// compare-and-swap; that surfaces here as a version conflict.
		return nil, m.reject(orderID, requested, err)
	}

	m.metrics.TransitionsAccepted.WithLabelValues(string(requested)).Inc()
	m.log.Info().
		Str("orderId", orderID).
		Str("from", string(order.OrderStatus)).
		Str("to", string(requested)).
		Int64("version", updated.Version).
		Msg("transition accepted")

	m.dist.Publish(updated, order.OrderStatus)
	return updated, nil
}

func (m *Machine) reject(orderID string, requested models.OrderStatus, err error) error {
	m.metrics.TransitionsRejected.WithLabelValues(apperrors.Code(err)).Inc()
	m.log.Debug().
		Str("orderId", orderID).
		Str("requested", string(requested)).
		Str("reason", apperrors.Code(err)).
		Msg("transition rejected")
	return err
}
