package qr

import (
	"github.com/rs/zerolog"

	"campuseats/internal/fulfillment"
	"campuseats/internal/models"
	"campuseats/internal/monitoring"
	"campuseats/internal/store"
	apperrors "campuseats/pkg/errors"
)

// Snapshot is the read-only order view returned by DecodeAndValidate so
// staff can visually confirm the order before committing the handoff. The
// version is included because the confirm call needs it.
type Snapshot struct {
	OrderID       string             `json:"orderId"`
	CustomerName  string             `json:"customerName"`
	CustomerPhone string             `json:"customerPhone"`
	Items         []models.OrderItem `json:"items"`
	TotalAmount   float64            `json:"totalAmount"`
	PickupDate    string             `json:"pickupDate"`
	PickupTime    string             `json:"pickupTime"`
	OrderStatus   models.OrderStatus `json:"orderStatus"`
	Version       int64              `json:"version"`
}

// Verifier owns the QR handoff. Scanning is physical and retriable, so
// DecodeAndValidate is side-effect-free and safe to call from a camera
// loop; ConfirmHandoff is the separate, irreversible commit.
type Verifier struct {
	store   *store.OrderStore
	machine *fulfillment.Machine
	codec   *Codec
	metrics *monitoring.Metrics
	log     zerolog.Logger
}

func NewVerifier(store *store.OrderStore, machine *fulfillment.Machine, codec *Codec, metrics *monitoring.Metrics, log zerolog.Logger) *Verifier {
	return &Verifier{
		store:   store,
		machine: machine,
		codec:   codec,
		metrics: metrics,
		log:     log.With().Str("component", "qr").Logger(),
	}
}

// DecodeAndValidate resolves a scanned payload to an order snapshot. It
// never mutates state: repeated scans of the same code are harmless.
func (v *Verifier) DecodeAndValidate(scannedPayload, requesterCanteenID string) (*Snapshot, error) {
	orderID, err := v.codec.Decode(scannedPayload)
	if err != nil {
		return nil, err
	}

	order, err := v.store.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.CanteenID != requesterCanteenID {
		return nil, apperrors.ErrOwnershipMismatch
	}
	switch order.OrderStatus {
	case models.OrderStatusReady:
	case models.OrderStatusCompleted:
		return nil, apperrors.ErrAlreadyCompleted
	default:
		return nil, apperrors.ErrNotReady
	}

	return &Snapshot{
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Items:         order.Items,
		TotalAmount:   order.TotalAmount,
		PickupDate:    order.PickupDate,
		PickupTime:    order.PickupTime,
		OrderStatus:   order.OrderStatus,
		Version:       order.Version,
	}, nil
}

// ConfirmHandoff commits READY -> COMPLETED. The version compare-and-swap
// guarantees at most one caller wins; losers get AlreadyCompleted or
// VersionConflict, never an ambiguous success.
func (v *Verifier) ConfirmHandoff(orderID, requesterCanteenID string, expectedVersion int64) (*models.Order, error) {
	order, err := v.machine.CommitHandoff(orderID, requesterCanteenID, expectedVersion)
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrTerminalOrder):
			v.metrics.HandoffConflicts.Inc()
			return nil, apperrors.ErrAlreadyCompleted
		case apperrors.Is(err, apperrors.ErrVersionConflict):
			v.metrics.HandoffConflicts.Inc()
			return nil, err
		case apperrors.Is(err, apperrors.ErrInvalidTransition):
			return nil, apperrors.ErrNotReady
		default:
			return nil, err
		}
	}

	v.log.Info().Str("orderId", orderID).Str("canteenId", requesterCanteenID).Msg("handoff confirmed")
	return order, nil
}
