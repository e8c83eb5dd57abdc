package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// maxFrameBytes bounds a single response frame. Archive files are small
// text documents; listings of large archives dominate.
const maxFrameBytes = 8 << 20

// WebSocketLink talks to a bridge daemon that relays storage requests to
// the device as JSON frames. One request is outstanding at a time. A broken
// connection is redialed on the next request.
type WebSocketLink struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketLink returns a link to url. No connection is made until the
// first request.
func NewWebSocketLink(url string, logger *slog.Logger) *WebSocketLink {
	return &WebSocketLink{url: url, logger: logger}
}

// Do sends req and waits for its response.
func (l *WebSocketLink) Do(ctx context.Context, req Request) (Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, _, err := websocket.Dial(ctx, l.url, nil)
		if err != nil {
			return Response{}, transportError(ctx, "dialing "+l.url, err)
		}

		conn.SetReadLimit(maxFrameBytes)
		l.conn = conn

		l.logger.Info("remote: connected to device bridge", slog.String("url", l.url))
	}

	if err := wsjson.Write(ctx, l.conn, req); err != nil {
		l.dropLocked()
		return Response{}, transportError(ctx, "sending request", err)
	}

	var resp Response
	if err := wsjson.Read(ctx, l.conn, &resp); err != nil {
		l.dropLocked()
		return Response{}, transportError(ctx, "reading response", err)
	}

	return resp, nil
}

// Close ends the connection, if any.
func (l *WebSocketLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	err := l.conn.Close(websocket.StatusNormalClosure, "")
	l.conn = nil

	return err
}

func (l *WebSocketLink) dropLocked() {
	if l.conn != nil {
		l.conn.CloseNow()
		l.conn = nil
	}
}

// transportError classifies a websocket failure as timeout or unavailable.
func transportError(ctx context.Context, what string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, what, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrLinkUnavailable, what, err)
}

// BridgeHandler serves the WebSocket protocol by relaying every request to
// link. It is the server side of WebSocketLink, used to expose a mounted
// device directory to another host.
type BridgeHandler struct {
	link   Link
	logger *slog.Logger
}

// NewBridgeHandler returns an http.Handler relaying to link.
func NewBridgeHandler(link Link, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{link: link, logger: logger}
}

func (h *BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("remote: bridge accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxFrameBytes)
	ctx := r.Context()

	for {
		var req Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("remote: bridge connection ended", slog.String("error", err.Error()))
			}

			return
		}

		resp, err := h.link.Do(ctx, req)
		if err != nil {
			resp = failure(req, StatusError, err.Error())
		}

		if err := wsjson.Write(ctx, conn, resp); err != nil {
			h.logger.Debug("remote: bridge write failed", slog.String("error", err.Error()))
			return
		}
	}
}
