package hostctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestFeedAppliesContextMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"type":"context","data":{"apiBaseUrl":"https://a","tag":"svc"}}`,
			`not json`,
			`{"type":"resize","data":{"apiBaseUrl":"https://ignored"}}`,
			`{"type":"context","data":{"apiBaseUrl":"https://b","tag":"svc"}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	defer srv.Close()

	tr := New()
	feed := &Feed{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Tracker: tr}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	pc, ok := tr.Current()
	if !ok || pc.APIBaseURL != "https://b" || pc.Tag != "svc" {
		t.Fatalf("unexpected context %+v ok=%v", pc, ok)
	}
}

func TestFeedRequiresURL(t *testing.T) {
	if err := (&Feed{Tracker: New()}).Run(context.Background()); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
