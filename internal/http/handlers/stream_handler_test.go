package handlers

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/notify"
)

func newStreamServer(t *testing.T, hub *notify.Hub, uid uint64) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if uid != 0 {
		r.Use(asUser(uid))
	}
	h := NewStreamHandlers(hub)
	h.StreamTimeout = 5 * time.Second
	h.Heartbeat = time.Hour // keep pings out of the assertions
	r.GET("/api/counsels/stream", h.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// nextEvent scans the stream for the next "event:" line and returns the
// event name plus the data line that follows it.
func nextEvent(t *testing.T, sc *bufio.Scanner) (name, data string) {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") && name != "" {
			return name, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	t.Fatalf("stream ended before an event arrived: %v", sc.Err())
	return "", ""
}

func TestStream_HandshakeAndStatusEvent(t *testing.T) {
	hub := notify.NewHub()
	srv := newStreamServer(t, hub, 42)

	resp, err := http.Get(srv.URL + "/api/counsels/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)

	name, _ := nextEvent(t, sc)
	if name != notify.EventConnected {
		t.Fatalf("first event = %q; want %q", name, notify.EventConnected)
	}

	// The handshake proves the subscription is registered; publish now.
	hub.PublishStatus(&domain.StatusChangedEvent{
		UserID:    42,
		CounselID: 7,
		Status:    domain.StatusCompleted,
	})

	name, data := nextEvent(t, sc)
	if name != notify.EventStatusChanged {
		t.Fatalf("second event = %q; want %q", name, notify.EventStatusChanged)
	}
	if !strings.Contains(data, "COMPLETED") {
		t.Fatalf("event data = %q; want status COMPLETED", data)
	}

	// Closing the hub ends the stream.
	hub.Close()
	for sc.Scan() {
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}
}

func TestStream_RequiresAuthentication(t *testing.T) {
	hub := notify.NewHub()
	t.Cleanup(hub.Close)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/counsels/stream", NewStreamHandlers(hub).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counsels/stream", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", w.Code)
	}
}

func TestStream_ClosedHubIsUnavailable(t *testing.T) {
	hub := notify.NewHub()
	hub.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asUser(42))
	r.GET("/api/counsels/stream", NewStreamHandlers(hub).Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counsels/stream", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want 503", w.Code)
	}
}
