package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/biohunter/internal/domain"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSubscribeReceivesRankingUpdates(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, RankingType: "global"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := readMessage(t, conn); ack.Type != MessageTypeSubscribed || ack.RankingType != "global" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	waitFor(t, func() bool { return hub.SubscriberCount("global") == 1 })

	hub.BroadcastRankingUpdate("weekly", nil, 0)
	hub.BroadcastRankingUpdate("global", []domain.RankedEntry{
		{Rank: 1, RankingEntry: domain.RankingEntry{PlayerID: "p1", Score: 42}},
	}, 1)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeRankingUpdate || msg.RankingType != "global" {
		t.Fatalf("expected global ranking update, got %+v", msg)
	}
	raw, _ := json.Marshal(msg.Data)
	var update RankingUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if len(update.Entries) != 1 || update.Entries[0].PlayerID != "p1" || update.TotalPlayers != 1 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestSubscribeRejectsInvalidRankingType(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, RankingType: "no spaces"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeError {
		t.Fatalf("expected error frame, got %+v", msg)
	}
	if hub.SubscriberCount("no spaces") != 0 {
		t.Fatalf("invalid subscription registered")
	}
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, RankingType: "global"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.SubscriberCount("global") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.SubscriberCount("global") == 0 && hub.ConnectionCount() == 0 })
}
