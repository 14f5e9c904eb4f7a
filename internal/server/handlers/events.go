package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/avicontrol/internal/events"
)

// Events streams change notifications as server-sent events until the client
// disconnects. Slow clients drop notifications rather than block writers.
func (h *Handler) Events(c *gin.Context) {
	ch := make(chan events.Event, 32)
	unsubscribe := h.store.Bus().SubscribeAll(func(evt events.Event) {
		select {
		case ch <- evt:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("ready", gin.H{"user": actor(c).ID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt := <-ch:
			c.SSEvent("change", evt)
			return true
		}
	})
}
