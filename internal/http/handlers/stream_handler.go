// Event stream HTTP handler.
//
// This file exposes the Server-Sent Events endpoint:
//   - GET /api/counsels/stream
//
// Each connection subscribes the authenticated user to the notification
// hub, receives a CONNECTED handshake immediately, and then
// COUNSEL_STATUS_CHANGED events as the user's counsels reach terminal
// states. Connections are bounded by a stream timeout and kept alive with
// periodic heartbeat comments so intermediaries do not drop idle streams.
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-counsel-backend/internal/http/middleware"
	"github.com/tbourn/go-counsel-backend/internal/notify"
)

// Subscriber is the slice of the notification hub used by the stream
// endpoint.
type Subscriber interface {
	Subscribe(userID uint64) *notify.Channel
	Unsubscribe(userID uint64, ch *notify.Channel)
}

// StreamHandlers serves the SSE endpoint.
type StreamHandlers struct {
	hub Subscriber

	// StreamTimeout bounds a single connection. Default 1h.
	StreamTimeout time.Duration
	// Heartbeat is the keep-alive comment interval. Default 30s.
	Heartbeat time.Duration
}

// NewStreamHandlers constructs StreamHandlers bound to the given hub.
func NewStreamHandlers(hub Subscriber) *StreamHandlers {
	return &StreamHandlers{
		hub:           hub,
		StreamTimeout: time.Hour,
		Heartbeat:     30 * time.Second,
	}
}

// Stream godoc
// @ID          streamCounselEvents
// @Summary     Subscribe to counsel status events
// @Description Opens a Server-Sent Events stream. Emits a CONNECTED handshake, then COUNSEL_STATUS_CHANGED events for the caller's counsels. The connection closes after the stream timeout; clients are expected to reconnect.
// @Tags        Counsels
// @Produce     text/event-stream
//
// @Success     200  {string}  string  "event stream"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /api/counsels/stream [get]
func (h *StreamHandlers) Stream(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}

	ch := h.hub.Subscribe(uid)
	if ch == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "server shutting down")
		return
	}
	defer h.hub.Unsubscribe(uid, ch)

	middleware.StreamOpened()
	defer middleware.StreamClosed()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	timeout := h.StreamTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-ch.Events():
			if !open {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-ch.Done():
			return false
		case <-clientGone:
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
			// SSE comment line; ignored by clients, keeps the pipe warm.
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}
