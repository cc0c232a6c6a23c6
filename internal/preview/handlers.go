package preview

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/1ureka/framelink/internal/util"
)

// mjpegBoundary separates parts of the multipart/x-mixed-replace stream.
const mjpegBoundary = "frame"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	latest, _ := s.latestFrame()
	c.JSON(http.StatusOK, gin.H{
		"stats":       util.Stats.Snapshot(),
		"latestIndex": latest.Index,
		"viewers":     s.viewers(),
		"skipped":     s.skipped.Load(),
	})
}

func (s *Server) handleLatest(c *gin.Context) {
	frame, ok := s.latestFrame()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("X-Frame-Index", strconv.FormatUint(uint64(frame.Index), 10))
	c.Data(http.StatusOK, "image/jpeg", frame.Data)
}

// handleMJPEG streams every frame as one part of a multipart response,
// which browsers render as live video in an <img> tag.
func (s *Server) handleMJPEG(c *gin.Context) {
	frames, unsubscribe := s.subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case frame := <-frames:
			if _, err := io.WriteString(w, "--"+mjpegBoundary+"\r\n"+
				"Content-Type: image/jpeg\r\n"+
				"Content-Length: "+strconv.Itoa(len(frame.Data))+"\r\n\r\n"); err != nil {
				return false
			}
			if _, err := w.Write(frame.Data); err != nil {
				return false
			}
			_, err := io.WriteString(w, "\r\n")
			return err == nil
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}
	})
}

// handleWS sends each frame as one binary message. The read side only
// services pings and detects the viewer leaving.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	frames, unsubscribe := s.subscribe()
	defer unsubscribe()

	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
