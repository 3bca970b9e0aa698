package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/home-dashboard/httping/internal/models"
)

func startServer(t *testing.T, token string) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	server := httptest.NewServer(NewHandler(hub, token, nil))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", msgType, err)
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m.Type == msgType {
			return m
		}
	}
}

func TestHubDeliversSnapshotsToSubscribers(t *testing.T) {
	hub, server := startServer(t, "")
	conn := dial(t, server, "")

	if err := conn.WriteJSON(ControlRequest{Type: "subscribe", Channels: []string{TargetChannel("router")}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	readUntil(t, conn, "ack")

	snap := &models.Snapshot{Name: "Router", InternalName: "router"}
	if err := hub.PublishSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}

	m := readUntil(t, conn, TypeSnapshot)
	if m.Channel != TargetChannel("router") {
		t.Errorf("expected channel %q, got %q", TargetChannel("router"), m.Channel)
	}
	if m.EventID == "" || m.SchemaVersion != SchemaVersion {
		t.Errorf("unexpected envelope %+v", m)
	}
	data, _ := json.Marshal(m.Data)
	var got models.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if got.InternalName != "router" {
		t.Errorf("expected router snapshot, got %q", got.InternalName)
	}
}

func TestHubReplaysLatestSnapshotOnSubscribe(t *testing.T) {
	hub, server := startServer(t, "")

	if err := hub.PublishSnapshot(context.Background(), &models.Snapshot{InternalName: "google"}); err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}
	// let the hub loop store the message
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		_, ok := hub.latest[ChannelDashboard]["google"]
		hub.mu.RUnlock()
		if ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn := dial(t, server, "")
	if err := conn.WriteJSON(ControlRequest{Type: "subscribe", Channels: []string{ChannelDashboard}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	m := readUntil(t, conn, TypeSnapshot)
	if m.Channel != ChannelDashboard {
		t.Errorf("expected dashboard channel, got %q", m.Channel)
	}
}

func TestHubRejectsInvalidRequests(t *testing.T) {
	_, server := startServer(t, "")
	conn := dial(t, server, "")

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", "hello", "INVALID_MESSAGE"},
		{"subscribe without channels", `{"type":"subscribe"}`, "INVALID_SUBSCRIBE"},
		{"unknown type", `{"type":"dance"}`, "UNKNOWN_TYPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.body)); err != nil {
				t.Fatalf("write: %v", err)
			}
			m := readUntil(t, conn, "error")
			if m.Error == nil || m.Error.Code != tt.code {
				t.Errorf("expected error code %s, got %+v", tt.code, m.Error)
			}
		})
	}
}

func TestHandlerToken(t *testing.T) {
	_, server := startServer(t, "secret")
	base := "ws" + strings.TrimPrefix(server.URL, "http")

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "?token=nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(base+tt.query, nil)
			if err == nil {
				t.Fatal("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %+v", tt.status, resp)
			}
		})
	}

	conn := dial(t, server, "?token=secret")
	if err := conn.WriteJSON(ControlRequest{Type: "subscribe", Channels: []string{ChannelDashboard}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	readUntil(t, conn, "ack")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://dash.local"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://dash.local", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestHubReplaysEveryTargetOnDashboard(t *testing.T) {
	hub, server := startServer(t, "")
	ctx := context.Background()

	for _, name := range []string{"router", "google", "router"} {
		if err := hub.PublishSnapshot(ctx, &models.Snapshot{InternalName: name}); err != nil {
			t.Fatalf("PublishSnapshot(%s): %v", name, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.latest[ChannelDashboard])
		hub.mu.RUnlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	tests := []struct {
		name    string
		channel string
		want    []string
	}{
		{name: "dashboard", channel: ChannelDashboard, want: []string{"google", "router"}},
		{name: "single target", channel: TargetChannel("router"), want: []string{"router"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, server, "")
			if err := conn.WriteJSON(ControlRequest{Type: "subscribe", Channels: []string{tt.channel}}); err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			var got []string
			for range tt.want {
				m := readUntil(t, conn, TypeSnapshot)
				if m.Channel != tt.channel {
					t.Errorf("channel = %q, want %q", m.Channel, tt.channel)
				}
				data, _ := json.Marshal(m.Data)
				var snap models.Snapshot
				if err := json.Unmarshal(data, &snap); err != nil {
					t.Fatalf("unmarshal snapshot: %v", err)
				}
				got = append(got, snap.InternalName)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("replayed %v, want %v", got, tt.want)
			}
		})
	}
}
