package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"

	"campuseats/internal/models"
	apperrors "campuseats/pkg/errors"
)

// OrderStore handles durable order state. All fulfillment status writes go
// through ApplyTransition, which performs a compare-and-swap on the order's
// version column so concurrent writers cannot clobber each other.
type OrderStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewOrderStore creates an OrderStore backed by the given database.
func NewOrderStore(db *gorm.DB, log zerolog.Logger) *OrderStore {
	return &OrderStore{db: db, log: log.With().Str("component", "store").Logger()}
}

// Create persists a new order. The order starts PENDING with payment
// pending and version 1; items and total are immutable afterwards.
func (s *OrderStore) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.OrderStatus = models.OrderStatusPending
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentPending
	}
	order.Version = 1
	order.TotalAmount = models.Subtotal(order.Items)

	if err := s.db.Create(order).Error; err != nil {
		s.log.Error().Err(err).Str("orderId", order.ID).Msg("failed to create order")
		return err
	}
	return nil
}

// GetByID loads an order with its items and status history.
func (s *OrderStore) GetByID(id string) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Items").Preload("History").
		Where("id = ?", id).First(&order).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperrors.ErrNotFound
		}
		s.log.Error().Err(err).Str("orderId", id).Msg("failed to load order")
		return nil, err
	}
	return &order, nil
}

// ListByCanteen returns a canteen's orders, newest first. Empty filter
// values match everything.
func (s *OrderStore) ListByCanteen(canteenID string, paymentStatus models.PaymentStatus, orderStatus models.OrderStatus) ([]models.Order, error) {
	query := s.db.Preload("Items").Where("canteen_id = ?", canteenID)
	if paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}
	if orderStatus != "" {
		query = query.Where("order_status = ?", orderStatus)
	}

	var orders []models.Order
	if err := query.Order("created_at desc").Find(&orders).Error; err != nil {
		s.log.Error().Err(err).Str("canteenId", canteenID).Msg("failed to list canteen orders")
		return nil, err
	}
	return orders, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (s *OrderStore) ListByCustomer(customerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at desc").Find(&orders).Error
	if err != nil {
		s.log.Error().Err(err).Str("customerId", customerID).Msg("failed to list customer orders")
		return nil, err
	}
	return orders, nil
}

// SettlePayment records the payment collaborator's outcome exactly once.
// The QR token and rendered code accompany a succeeded payment. A second
// settlement attempt fails with ErrPaymentSettled.
func (s *OrderStore) SettlePayment(id string, status models.PaymentStatus, qrToken, qrCodeBase64 string) (*models.Order, error) {
	updates := map[string]interface{}{
		"payment_status": status,
		"updated_at":     time.Now(),
	}
	if qrToken != "" {
		updates["qr_token"] = qrToken
	}
	if qrCodeBase64 != "" {
		updates["qr_code_base64"] = qrCodeBase64
	}

	res := s.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		s.log.Error().Err(res.Error).Str("orderId", id).Msg("failed to settle payment")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(id); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrPaymentSettled
	}
	return s.GetByID(id)
}

// ApplyTransition commits one fulfillment transition atomically: the status
// write, the lifecycle timestamp, the version increment and the history
// record all land together or not at all. The version predicate makes this
// a compare-and-swap; a stale expectedVersion loses with ErrVersionConflict.
func (s *OrderStore) ApplyTransition(orderID string, from, to models.OrderStatus, changedBy string, expectedVersion int64) (*models.Order, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"order_status": to,
		"version":      expectedVersion + 1,
		"updated_at":   now,
	}
	switch to {
	case models.OrderStatusPreparing:
		updates["prepared_at"] = now
	case models.OrderStatusReady:
		updates["ready_at"] = now
	case models.OrderStatusCompleted:
		updates["completed_at"] = now
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		tx.Rollback()
		s.log.Error().Err(res.Error).Str("orderId", orderID).Msg("transition write failed")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.ErrVersionConflict
	}

	change := models.StatusChange{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedAt:  now,
		ChangedBy:  changedBy,
	}
	if err := tx.Create(&change).Error; err != nil {
		tx.Rollback()
		s.log.Error().Err(err).Str("orderId", orderID).Msg("history write failed")
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return s.GetByID(orderID)
}
