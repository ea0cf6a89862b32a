package livefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nshruti113/ddos-defense-dashboard/internal/logging"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

func TestParseMessage(t *testing.T) {
	valid := `{"label":"SYN Flood","src":"10.0.0.1","dst":"10.0.0.2","sample":12,"severity":"critical"}`
	msg, err := ParseMessage([]byte(valid))
	if err != nil {
		t.Fatalf("ParseMessage(valid) error: %v", err)
	}
	if msg.Label != "SYN Flood" || msg.Sample != 12 || msg.Src != "10.0.0.1" || msg.Dst != "10.0.0.2" {
		t.Errorf("parsed = %+v", msg)
	}

	malformed := []string{
		`not json`,
		`[1,2,3]`,
		`null`,
		`"SYN Flood"`,
		`{"label":"SYN Flood","sample":1.5}`,
		`{"label":"SYN Flood","sample":"12"}`,
		`{"label":"SYN Flood"}`,
		`{"label":"","sample":3}`,
		`{"label":7,"sample":3}`,
	}
	for _, raw := range malformed {
		if _, err := ParseMessage([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseMessage(%s) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestNewEventDowngradesSeverity(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ev := NewEvent(models.FeedMessage{Label: "UDP Flood", Sample: 4, Severity: "apocalyptic"}, now)

	if ev.Severity != models.SeverityInfo {
		t.Errorf("severity = %s, want info", ev.Severity)
	}
	if !ev.ReceivedAt.Equal(now) || ev.ID == "" || ev.SampleID != 4 {
		t.Errorf("event = %+v", ev)
	}
}

// feedServer pushes frames to every connection it accepts
type feedServer struct {
	*httptest.Server
	frames      []string
	keepOpen    bool
	connections int32
	closed      chan struct{}
}

func newFeedServer(t *testing.T, frames []string, keepOpen bool) *feedServer {
	t.Helper()
	fs := &feedServer{frames: frames, keepOpen: keepOpen, closed: make(chan struct{}, 8)}
	upgrader := websocket.Upgrader{}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&fs.connections, 1)

		for _, f := range fs.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if !fs.keepOpen {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				fs.closed <- struct{}{}
				return
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

type collectingSink struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (s *collectingSink) push(ev models.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *collectingSink) snapshot() []models.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlertEvent, len(s.events))
	copy(out, s.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientForwardsWellFormedInOrder(t *testing.T) {
	fs := newFeedServer(t, []string{
		`{"label":"SYN Flood","src":"a","dst":"b","sample":1,"severity":"critical"}`,
		`garbage`,
		`{"label":"","sample":2}`,
		`{"label":"HTTP Flood","src":"c","dst":"d","sample":3,"severity":"warning"}`,
		`{"label":"UDP Flood","src":"e","dst":"f","sample":2.5}`,
		`{"label":"Slowloris","src":"g","dst":"h","sample":4,"severity":"weird"}`,
	}, true)

	sink := &collectingSink{}
	c := NewClient(fs.wsURL(), sink.push, logging.Discard(), nil)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })

	got := sink.snapshot()
	wantSamples := []int64{1, 3, 4}
	for i, ev := range got {
		if ev.SampleID != wantSamples[i] {
			t.Fatalf("event %d sample = %d, want %d", i, ev.SampleID, wantSamples[i])
		}
	}
	if got[2].Severity != models.SeverityInfo {
		t.Errorf("unknown severity not down-graded: %s", got[2].Severity)
	}
}

func TestOpenIsNoOpWhenConnected(t *testing.T) {
	fs := newFeedServer(t, nil, true)
	c := NewClient(fs.wsURL(), func(models.AlertEvent) {}, logging.Discard(), nil)

	ctx := context.Background()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Open(ctx); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if n := atomic.LoadInt32(&fs.connections); n != 1 {
		t.Errorf("server saw %d connections, want 1", n)
	}

	c.Close()
	if c.IsOpen() {
		t.Error("client still open after Close")
	}
	select {
	case <-fs.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the connection close")
	}

	// a fresh Open dials again
	if err := c.Open(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	waitFor(t, func() bool { return atomic.LoadInt32(&fs.connections) == 2 })
}

func TestNoEventsAfterClose(t *testing.T) {
	fs := newFeedServer(t, nil, true)
	sink := &collectingSink{}
	c := NewClient(fs.wsURL(), sink.push, logging.Discard(), nil)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Close()
	c.Close()

	if len(sink.snapshot()) != 0 {
		t.Errorf("unexpected events: %+v", sink.snapshot())
	}
}

func TestRemoteCloseClearsHandle(t *testing.T) {
	fs := newFeedServer(t, []string{`{"label":"SYN Flood","sample":9}`}, false)
	sink := &collectingSink{}
	c := NewClient(fs.wsURL(), sink.push, logging.Discard(), nil)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, func() bool { return !c.IsOpen() })

	if got := sink.snapshot(); len(got) != 1 || got[0].SampleID != 9 {
		t.Errorf("events = %+v", got)
	}
	// no automatic reconnection
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&fs.connections); n != 1 {
		t.Errorf("client reconnected on its own: %d connections", n)
	}
}

func TestOpenFailsForUnreachableFeed(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", func(models.AlertEvent) {}, logging.Discard(), nil,
		WithDialTimeout(500*time.Millisecond))

	if err := c.Open(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if c.IsOpen() {
		t.Error("failed dial left a handle behind")
	}
}
