package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campuseats/internal/models"
	"campuseats/internal/qr"
	apperrors "campuseats/pkg/errors"
)

type orderItemRequest struct {
	MenuItemID string  `json:"menuItemId"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unitPrice"`
	Quantity   int     `json:"quantity"`
}

type createOrderRequest struct {
	CanteenID     string             `json:"canteenId"`
	CustomerID    string             `json:"customerId"`
	CustomerName  string             `json:"customerName"`
	CustomerEmail string             `json:"customerEmail"`
	CustomerPhone string             `json:"customerPhone"`
	OrderType     string             `json:"orderType"`
	PickupDate    string             `json:"pickupDate"`
	PickupTime    string             `json:"pickupTime"`
	Items         []orderItemRequest `json:"items"`
}

type settlePaymentRequest struct {
	Status          string `json:"status"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type verifyQRRequest struct {
	ScannedData string `json:"scannedData"`
	CanteenID   string `json:"canteenId"`
}

type confirmHandoffRequest struct {
	CanteenID       string `json:"canteenId"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type presenceRequest struct {
	Routes []string `json:"routes"`
}

// orderStatusView is the polling gateway's customer tracker projection.
type orderStatusView struct {
	OrderID       string               `json:"orderId"`
	OrderStatus   models.OrderStatus   `json:"orderStatus"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Version       int64                `json:"version"`
	PreparedAt    *time.Time           `json:"preparedAt,omitempty"`
	ReadyAt       *time.Time           `json:"readyAt,omitempty"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func (s *Server) respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	})
}

// CreateOrder records a new PENDING order on behalf of the checkout
// collaborator. Items and the derived total become immutable here.
func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CanteenID == "" || req.CustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "canteenId and customerId are required"})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must contain at least one item"})
		return
	}

	orderType := models.OrderType(req.OrderType)
	pickupDate, pickupTime := req.PickupDate, req.PickupTime
	switch orderType {
	case models.OrderTypeNow:
		now := time.Now()
		pickupDate = now.Format("2006-01-02")
		pickupTime = now.Format("15:04")
	case models.OrderTypeLater:
		if pickupDate == "" || pickupTime == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pickup date and time are required for scheduled orders"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order type, must be NOW or LATER"})
		return
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item quantity must be positive"})
			return
		}
		items = append(items, models.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	order := &models.Order{
		CanteenID:     req.CanteenID,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		OrderType:     orderType,
		PickupDate:    pickupDate,
		PickupTime:    pickupTime,
		Items:         items,
	}
	if err := s.store.Create(order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// ListCustomerOrders returns a customer's orders, newest first.
func (s *Server) ListCustomerOrders(c *gin.Context) {
	customerID := c.Query("customerId")
	if customerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerId query parameter is required"})
		return
	}
	orders, err := s.store.ListByCustomer(customerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder returns one order with items and status history.
func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.store.GetByID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// SettlePayment consumes the external payment collaborator's outcome. On
// success the order receives its handoff token and rendered QR code.
func (s *Server) SettlePayment(c *gin.Context) {
	var req settlePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.PaymentStatus(req.Status)
	if status != models.PaymentSucceeded && status != models.PaymentFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment status must be succeeded or failed"})
		return
	}

	orderID := c.Param("id")
	var token, image string
	if status == models.PaymentSucceeded {
		var err error
		token, err = s.codec.Issue(orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		image, err = qr.RenderPNG(token)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	order, err := s.store.SettlePayment(orderID, status, token, image)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus applies one staff-requested fulfillment transition.
// COMPLETED is rejected here; the handoff endpoint is the only way to
// complete an order.
func (s *Server) UpdateOrderStatus(c *gin.Context) {
	canteenID := c.Query("canteenId")
	if canteenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "canteenId query parameter is required"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requested := models.OrderStatus(req.Status)
	if !requested.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown order status " + req.Status})
		return
	}

	order, err := s.machine.AttemptTransition(c.Param("id"), requested, canteenID, req.ExpectedVersion)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// VerifyQR resolves a scanned payload to an order snapshot without side
// effects. The camera loop may call this repeatedly.
func (s *Server) VerifyQR(c *gin.Context) {
	var req verifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScannedData == "" || req.CanteenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scannedData and canteenId are required"})
		return
	}

	snapshot, err := s.verifier.DecodeAndValidate(req.ScannedData, req.CanteenID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ConfirmHandoff commits the READY -> COMPLETED transition for a verified
// scan. At most one of two racing confirmations succeeds.
func (s *Server) ConfirmHandoff(c *gin.Context) {
	var req confirmHandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CanteenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "canteenId is required"})
		return
	}

	order, err := s.verifier.ConfirmHandoff(c.Param("id"), req.CanteenID, req.ExpectedVersion)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrderStatus is the customer tracker's polling endpoint. Pure read,
// safe at any cadence.
func (s *Server) GetOrderStatus(c *gin.Context) {
	order, err := s.store.GetByID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderStatusView{
		OrderID:       order.ID,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		Version:       order.Version,
		PreparedAt:    order.PreparedAt,
		ReadyAt:       order.ReadyAt,
		CompletedAt:   order.CompletedAt,
		UpdatedAt:     order.UpdatedAt,
	})
}

// GetCanteenOrders serves the kitchen and canteen-orders polling loops.
// Optional paymentStatus/orderStatus query parameters narrow the list.
func (s *Server) GetCanteenOrders(c *gin.Context) {
	orders, err := s.store.ListByCanteen(
		c.Param("canteenId"),
		models.PaymentStatus(c.Query("paymentStatus")),
		models.OrderStatus(c.Query("orderStatus")),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ReportPresence lets the transport collaborator publish the set of client
// routes a recipient currently has open. An empty list clears presence.
func (s *Server) ReportPresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.presence.SetActiveRoutes(c.Request.Context(), c.Param("recipient"), req.Routes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "presence updated"})
}
