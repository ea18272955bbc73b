package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fundingflow/internal/backoff"
)

var upgrader = websocket.Upgrader{}

// wsServer serves each incoming connection with the given script and then
// closes it.
func wsServer(t *testing.T, script func(conn *websocket.Conn, connIndex int)) *httptest.Server {
	t.Helper()
	var connCount int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		idx := int(atomic.AddInt32(&connCount, 1)) - 1
		script(conn, idx)
		conn.Close()
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func fastBackoff() *backoff.Controller {
	return backoff.New(time.Millisecond, 10*time.Millisecond)
}

func TestRunDeliversFramesInOrder(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, _ int) {
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("frame-%d", i))); err != nil {
				return
			}
		}
		// keep the connection open until the client goes away
		conn.ReadMessage()
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 8)

	c := New(Config{URL: wsURL(srv), Name: "test", Backoff: fastBackoff()}, func(data []byte) error {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
		received <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"frame-0", "frame-1", "frame-2"} {
		if got[i] != want {
			t.Fatalf("frame %d: expected %q, got %q", i, want, got[i])
		}
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected state after cancellation, got %v", c.State())
	}
}

func TestRunSurvivesHandlerError(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, _ int) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte("valid"))
		conn.ReadMessage()
	})
	defer srv.Close()

	valid := make(chan string, 2)
	c := New(Config{URL: wsURL(srv), Name: "test", Backoff: fastBackoff()}, func(data []byte) error {
		if string(data) != "valid" {
			return fmt.Errorf("unparseable frame")
		}
		valid <- string(data)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case frame := <-valid:
		if frame != "valid" {
			t.Fatalf("unexpected frame: %q", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after a decode failure was never processed")
	}
}

func TestRunReconnectsAfterClose(t *testing.T) {
	connects := make(chan int, 4)
	srv := wsServer(t, func(conn *websocket.Conn, idx int) {
		connects <- idx
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		if idx == 0 {
			return // abrupt close, client should reconnect
		}
		conn.ReadMessage()
	})
	defer srv.Close()

	c := New(Config{URL: wsURL(srv), Name: "test", Backoff: fastBackoff()}, func([]byte) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-connects:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected connection %d, never happened", i)
		}
	}
}

// failingDialer fails a fixed number of dials before delegating to the real
// dialer, recording the delays requested between attempts.
type failingDialer struct {
	failures int32
	real     Dialer
}

func (d *failingDialer) DialContext(ctx context.Context, urlStr string, h http.Header) (*websocket.Conn, *http.Response, error) {
	if atomic.AddInt32(&d.failures, -1) >= 0 {
		return nil, nil, fmt.Errorf("connection refused")
	}
	return d.real.DialContext(ctx, urlStr, h)
}

func TestRunBacksOffOnDialFailure(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, _ int) {
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.ReadMessage()
	})
	defer srv.Close()

	dialer := &failingDialer{failures: 3, real: &websocket.Dialer{}}
	received := make(chan struct{}, 1)
	c := New(Config{URL: wsURL(srv), Name: "test", Backoff: fastBackoff(), Dialer: dialer}, func([]byte) error {
		select {
		case received <- struct{}{}:
		default:
		}
		return nil
	})

	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err() == nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never recovered from dial failures")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) < 3 {
		t.Fatalf("expected at least 3 backoff waits, got %d", len(delays))
	}
	for i := 1; i < 3; i++ {
		if delays[i] < delays[i-1] {
			t.Fatalf("backoff delays not non-decreasing: %v", delays[:3])
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateStreaming:    "streaming",
		StateBackoff:      "backoff",
		State(99):         "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
