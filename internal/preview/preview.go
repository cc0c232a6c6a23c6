// Package preview serves received frames over HTTP: an MJPEG stream for
// browsers, a WebSocket feed of raw frames, the latest still, and the
// process stats.
package preview

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/1ureka/framelink/internal/media"
	"github.com/1ureka/framelink/internal/util"
)

const (
	subscriberQueue = 2
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingEvery       = (pongWait * 9) / 10
)

// Server fans received frames out to HTTP viewers. It implements
// media.Sink; a slow viewer skips frames rather than slowing the receiver.
type Server struct {
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu     sync.Mutex
	latest media.Frame
	subs   map[chan media.Frame]struct{}

	skipped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

var _ media.Sink = (*Server)(nil)

// New builds the preview server and its routes.
func New() *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[chan media.Frame]struct{}),
		done: make(chan struct{}),
	}

	s.engine.Use(gin.Recovery(), requestLog)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	s.engine.GET("/latest.jpg", s.handleLatest)
	s.engine.GET("/stream.mjpeg", s.handleMJPEG)
	s.engine.GET("/ws", s.handleWS)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	util.LogInfo("preview on http://%s/stream.mjpeg", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// WriteFrame records frame as the latest and offers it to every viewer.
func (s *Server) WriteFrame(_ context.Context, frame media.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = frame
	for ch := range s.subs {
		select {
		case ch <- frame:
		default:
			s.skipped.Add(1)
		}
	}
	return nil
}

// Close disconnects every viewer. Further frames are still accepted.
func (s *Server) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *Server) subscribe() (<-chan media.Frame, func()) {
	ch := make(chan media.Frame, subscriberQueue)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *Server) viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) latestFrame() (media.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest.Data != nil
}

func requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	util.LogDebug("preview %s %s %d %s", c.Request.Method, c.Request.URL.Path,
		c.Writer.Status(), time.Since(start).Round(time.Microsecond))
}
