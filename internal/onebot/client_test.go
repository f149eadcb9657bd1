package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeGateway is a minimal OneBot endpoint: it upgrades connections and
// hands each inbound frame to handle, which may write response frames.
type fakeGateway struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader
	conns    atomic.Int32
	handle   func(conn *websocket.Conn, frame map[string]any)
	onOpen   func(conn *websocket.Conn)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{t: t}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns.Add(1)
		if g.onOpen != nil {
			g.onOpen(conn)
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if g.handle != nil {
				g.handle(conn, frame)
			}
		}
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func startClient(t *testing.T, g *fakeGateway, timeout time.Duration) (*Client, context.CancelFunc) {
	c := NewClient(g.url(), timeout)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, cancel
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRequestCorrelation(t *testing.T) {
	g := newFakeGateway(t)
	g.handle = func(conn *websocket.Conn, frame map[string]any) {
		echo, _ := frame["echo"].(string)
		resp := map[string]any{
			"status":  "ok",
			"retcode": 0,
			"echo":    echo,
			"data":    map[string]any{"user_id": 123, "nickname": "小明"},
		}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	}

	c, _ := startClient(t, g, 3*time.Second)

	info, err := c.GetStrangerInfo(context.Background(), 123)
	if err != nil {
		t.Fatalf("GetStrangerInfo: %v", err)
	}
	if info.Nickname != "小明" {
		t.Errorf("nickname = %q, want 小明", info.Nickname)
	}
	if n := c.PendingRequests(); n != 0 {
		t.Errorf("pending requests after completion = %d, want 0", n)
	}
}

func TestRequestTimeout(t *testing.T) {
	g := newFakeGateway(t)
	// Gateway swallows every frame.
	c, _ := startClient(t, g, 200*time.Millisecond)

	_, err := c.Request(context.Background(), "get_msg", map[string]any{"message_id": "1"})
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}
	if n := c.PendingRequests(); n != 0 {
		t.Errorf("pending requests after timeout = %d, want 0", n)
	}
}

func TestEventDelivery(t *testing.T) {
	g := newFakeGateway(t)
	g.onOpen = func(conn *websocket.Conn) {
		ev := map[string]any{
			"post_type":      "message",
			"message_type":   "group",
			"group_id":       42,
			"user_id":        7,
			"raw_message":    "hello",
			"message_format": "string",
		}
		data, _ := json.Marshal(ev)
		conn.WriteMessage(websocket.TextMessage, data)
	}

	c, _ := startClient(t, g, time.Second)

	select {
	case ev := <-c.Events():
		if ev.GroupID != 42 || ev.RawMessage != "hello" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	g := newFakeGateway(t)
	g.onOpen = func(conn *websocket.Conn) {
		// First connection dies immediately; later ones stay up.
		if g.conns.Load() == 1 {
			conn.Close()
		}
	}
	g.handle = func(conn *websocket.Conn, frame map[string]any) {
		echo, _ := frame["echo"].(string)
		data, _ := json.Marshal(map[string]any{"status": "ok", "retcode": 0, "echo": echo})
		conn.WriteMessage(websocket.TextMessage, data)
	}

	c, _ := startClient(t, g, 3*time.Second)

	waitFor(t, func() bool { return g.conns.Load() >= 2 }, "client never reconnected")

	// The resumed connection serves correlated requests again and no
	// stale waiter survived the drop.
	resp, err := c.Request(context.Background(), "send_group_msg", map[string]any{"group_id": 1, "message": "hi"})
	if err != nil {
		t.Fatalf("request after reconnect: %v", err)
	}
	if !resp.OK() {
		t.Errorf("response not ok: %+v", resp)
	}
	if n := c.PendingRequests(); n != 0 {
		t.Errorf("pending requests = %d, want 0", n)
	}
}

func TestWaiterFailsOnDisconnect(t *testing.T) {
	g := newFakeGateway(t)
	g.handle = func(conn *websocket.Conn, frame map[string]any) {
		// Receive the request, then drop the connection instead of
		// answering.
		conn.Close()
	}

	c, _ := startClient(t, g, 5*time.Second)

	_, err := c.Request(context.Background(), "get_msg", map[string]any{"message_id": "9"})
	if !errors.Is(err, ErrConnClosed) {
		t.Fatalf("err = %v, want ErrConnClosed", err)
	}
}

func TestSendQueueFull(t *testing.T) {
	// No running connection, so nothing drains the queue.
	c := NewClient("ws://127.0.0.1:1/", time.Second)
	var err error
	for i := 0; i <= sendQueueSize; i++ {
		err = c.Send("send_group_msg", map[string]any{"group_id": 1, "message": "x"})
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}
