package preview

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/framelink/internal/media"
)

// feed writes frames until stop is closed, so late subscribers still see one.
func feed(s *Server, data []byte, stop <-chan struct{}) {
	var index uint32
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			index++
			_ = s.WriteFrame(context.Background(), media.Frame{Index: index, Data: data})
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	s := New()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, s.WriteFrame(context.Background(), media.Frame{Index: 42, Data: []byte("jpeg")}))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.EqualValues(t, 42, payload["latestIndex"])
	require.Contains(t, payload["stats"], "framesReceived")
}

func TestLatest(t *testing.T) {
	s := New()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest.jpg", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, s.WriteFrame(context.Background(), media.Frame{Index: 7, Data: []byte("still")}))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, "7", rec.Header().Get("X-Frame-Index"))
	require.Equal(t, "still", rec.Body.String())
}

func TestWebSocketDelivery(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go feed(s, []byte("frame-bytes"), stop)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	require.Equal(t, "frame-bytes", string(msg))
}

// TestMJPEGHeadersBeforeFirstFrame verifies a viewer of an idle receiver
// gets the response headers right away.
func TestMJPEGHeadersBeforeFirstFrame(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream.mjpeg", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMJPEGStream(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream.mjpeg", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	stop := make(chan struct{})
	defer close(stop)
	go feed(s, []byte("jpeg-part"), stop)

	mr := multipart.NewReader(resp.Body, mjpegBoundary)
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		require.NoError(t, err)
		require.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		require.Equal(t, "jpeg-part", string(body))
	}
}

func TestCloseEndsViewers(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.viewers() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	require.Eventually(t, func() bool { return s.viewers() == 0 }, 5*time.Second, 5*time.Millisecond)
}
