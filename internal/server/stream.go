package server

import (
	"fmt"
	"net/http"

	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/router"
)

// StreamHandler serves one frame kind of the router as MJPEG. Each client
// gets its own mailbox, so a slow client only skips frames.
type StreamHandler struct {
	router *router.Router
	kind   router.Kind
}

// NewStreamHandler creates a new StreamHandler for Input or Output frames.
func NewStreamHandler(r *router.Router, kind router.Kind) *StreamHandler {
	return &StreamHandler{router: r, kind: kind}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	mb := h.router.Subscribe(h.kind)
	defer mb.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, err := mb.Next(r.Context())
		if err != nil {
			// client gone or mailbox closed
			return
		}

		if ev.Frame == nil || ev.Frame.Empty() {
			ev.Close()
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, *ev.Frame)
		ev.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, werr := w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()
		if werr != nil {
			return
		}

		flusher.Flush()
	}
}
