package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/service/sales"
)

// ListOrders returns visible orders, filtered by batchId, mode,
// paymentStatus and direct query parameters.
func (h *Handler) ListOrders(c *gin.Context) {
	direct, _ := strconv.ParseBool(c.Query("direct"))
	q := sales.OrderQuery{
		BatchID:       c.Query("batchId"),
		Mode:          models.WeighingMode(c.Query("mode")),
		PaymentStatus: models.PaymentStatus(c.Query("paymentStatus")),
		DirectOnly:    direct,
	}
	c.JSON(http.StatusOK, h.sales.ListOrders(actor(c), q))
}

// GetOrder returns one order.
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.sales.GetOrder(actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// CreateOrder opens an order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var in sales.OrderInput
	if !h.bind(c, &in) {
		return
	}
	o, err := h.sales.CreateOrder(actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// UpdateOrder edits an open order.
func (h *Handler) UpdateOrder(c *gin.Context) {
	var in sales.OrderUpdate
	if !h.bind(c, &in) {
		return
	}
	o, err := h.sales.UpdateOrder(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// DeleteOrder removes an order.
func (h *Handler) DeleteOrder(c *gin.Context) {
	if err := h.sales.DeleteOrder(actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddRecord appends a scale reading.
func (h *Handler) AddRecord(c *gin.Context) {
	var in sales.RecordInput
	if !h.bind(c, &in) {
		return
	}
	o, err := h.sales.AddRecord(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// DeleteRecord removes a scale reading.
func (h *Handler) DeleteRecord(c *gin.Context) {
	o, err := h.sales.DeleteRecord(actor(c), c.Param("id"), c.Param("recordId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Checkout closes an order.
func (h *Handler) Checkout(c *gin.Context) {
	var in sales.CheckoutInput
	if !h.bind(c, &in) {
		return
	}
	o, err := h.sales.Checkout(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// RegisterPayment adds a manual payment.
func (h *Handler) RegisterPayment(c *gin.Context) {
	var in sales.PaymentInput
	if !h.bind(c, &in) {
		return
	}
	o, err := h.sales.RegisterPayment(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// OrderTotals returns the derived totals of an order.
func (h *Handler) OrderTotals(c *gin.Context) {
	t, err := h.sales.OrderTotals(actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
