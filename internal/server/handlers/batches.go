package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/service/sales"
)

// ListBatches returns the visible batches.
func (h *Handler) ListBatches(c *gin.Context) {
	c.JSON(http.StatusOK, h.sales.ListBatches(actor(c)))
}

// GetBatch returns one batch.
func (h *Handler) GetBatch(c *gin.Context) {
	b, err := h.sales.GetBatch(actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CreateBatch opens a batch.
func (h *Handler) CreateBatch(c *gin.Context) {
	var in sales.BatchInput
	if !h.bind(c, &in) {
		return
	}
	b, err := h.sales.CreateBatch(actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// UpdateBatch edits a batch.
func (h *Handler) UpdateBatch(c *gin.Context) {
	var in sales.BatchInput
	if !h.bind(c, &in) {
		return
	}
	b, err := h.sales.UpdateBatch(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CloseBatch marks a batch CLOSED.
func (h *Handler) CloseBatch(c *gin.Context) {
	b, err := h.sales.CloseBatch(actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DeleteBatch removes a batch and its orders.
func (h *Handler) DeleteBatch(c *gin.Context) {
	if err := h.sales.DeleteBatch(actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BatchTotals returns the batch roll-up.
func (h *Handler) BatchTotals(c *gin.Context) {
	t, err := h.sales.BatchTotals(actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// BatchReport returns the batch roll-up with its order lines.
func (h *Handler) BatchReport(c *gin.Context) {
	if _, err := h.sales.GetBatch(actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.reporting.BatchReport(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ExportBatch sends the batch report to the spreadsheet.
func (h *Handler) ExportBatch(c *gin.Context) {
	if _, err := h.sales.GetBatch(actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.reporting.ExportBatch(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Warn("batch export failed", zap.String("batch_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
