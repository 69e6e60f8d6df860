package hostctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Feed reads pushed host messages from a WebSocket and applies them to a Tracker.
type Feed struct {
	URL     string
	Header  http.Header
	Dialer  *websocket.Dialer
	Tracker *Tracker
	Logger  *slog.Logger
}

// Run dials the feed and applies messages until the connection closes or ctx
// is done. A malformed message is logged and skipped.
func (f *Feed) Run(ctx context.Context) error {
	if f.URL == "" {
		return errors.New("context feed url is empty")
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, f.URL, f.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial context feed: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial context feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read context feed: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("context feed message dropped", "error", err)
			continue
		}
		changed, err := f.Tracker.Handle(msg)
		if err != nil {
			logger.Warn("context feed message dropped", "type", msg.Type, "error", err)
			continue
		}
		if !changed {
			logger.Debug("context feed message ignored", "type", msg.Type)
		}
	}
}
