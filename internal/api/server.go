package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"campuseats/internal/distributor"
	"campuseats/internal/fulfillment"
	"campuseats/internal/qr"
	"campuseats/internal/store"
)

// Server is the HTTP surface of the fulfillment service. Three independent
// client loops poll the read endpoints on their own cadences (order
// tracker, kitchen display, canteen orders view); the server just answers
// each call with the latest committed state.
type Server struct {
	router   *gin.Engine
	store    *store.OrderStore
	machine  *fulfillment.Machine
	verifier *qr.Verifier
	dist     *distributor.Distributor
	presence distributor.PresenceRegistry
	codec    *qr.Codec
	log      zerolog.Logger
}

// NewServer wires the fulfillment components into a gin router.
func NewServer(
	orderStore *store.OrderStore,
	machine *fulfillment.Machine,
	verifier *qr.Verifier,
	dist *distributor.Distributor,
	presence distributor.PresenceRegistry,
	codec *qr.Codec,
	log zerolog.Logger,
) *Server {
	s := &Server{
		router:   gin.New(),
		store:    orderStore,
		machine:  machine,
		verifier: verifier,
		dist:     dist,
		presence: presence,
		codec:    codec,
		log:      log.With().Str("component", "api").Logger(),
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		// Order lifecycle
		v1.POST("/orders", s.CreateOrder)
		v1.GET("/orders", s.ListCustomerOrders)
		v1.GET("/orders/:id", s.GetOrder)
		v1.PATCH("/orders/:id/payment", s.SettlePayment)
		v1.PATCH("/orders/:id/status", s.UpdateOrderStatus)

		// QR handoff
		v1.POST("/orders/verify-qr", s.VerifyQR)
		v1.POST("/orders/:id/handoff", s.ConfirmHandoff)

		// Polling gateway
		v1.GET("/orders/:id/status", s.GetOrderStatus)
		v1.GET("/orders/canteen/:canteenId", s.GetCanteenOrders)

		// Presence reporting from the transport collaborator
		v1.PUT("/presence/:recipient", s.ReportPresence)
	}

	// Live status feeds
	s.router.GET("/ws/canteen/:canteenId", s.CanteenFeed)
	s.router.GET("/ws/orders/:id", s.OrderFeed)
}

// Router returns the gin router, mainly for tests and the HTTP server.
func (s *Server) Router() *gin.Engine {
	return s.router
}
