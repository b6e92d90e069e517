package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"capturerig/director/internal/auth"
	"capturerig/director/internal/events"
	"capturerig/director/internal/logging"
	"capturerig/director/internal/websockettest"
)

func newFeedServer(t *testing.T, opts HubOptions) (*Hub, *events.Stream, *httptest.Server) {
	t.Helper()
	stream := events.NewStream(events.Config{})
	opts.Source = stream
	opts.Logger = logging.NewTestLogger()
	hub := NewHub(opts)
	server := httptest.NewServer(NewHandlerSet(Options{Logger: logging.NewTestLogger(), Hub: hub}).Router())
	t.Cleanup(server.Close)
	return hub, stream, server
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d feed clients, have %d", want, hub.Clients())
}

func TestHubDeliversCurrentThenLiveChanges(t *testing.T) {
	hub, stream, server := newFeedServer(t, HubOptions{})
	stream.Publish(events.Change{ViewpointID: 0, ViewpointName: "front", PreviousID: events.NoViewpoint, Reason: events.ReasonInitial, At: time.Unix(10, 0)})

	conn, _, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	first, err := websockettest.ReadChange(conn, time.Second)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if first.Sequence != 1 || first.ViewpointName != "front" {
		t.Fatalf("unexpected current change %+v", first)
	}

	stream.Publish(events.Change{ViewpointID: 2, ViewpointName: "side", PreviousID: 0, Reason: events.ReasonCloser, At: time.Unix(11, 0)})
	next, err := websockettest.ReadChange(conn, time.Second)
	if err != nil {
		t.Fatalf("read live: %v", err)
	}
	if next.Sequence != 2 || next.ViewpointID != 2 || next.Reason != events.ReasonCloser {
		t.Fatalf("unexpected live change %+v", next)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubRequiresViewerToken(t *testing.T) {
	signer, err := auth.NewSigner("feed-secret", 0)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	hub, _, server := newFeedServer(t, HubOptions{Signer: signer})

	_, resp, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), nil)
	if err == nil {
		t.Fatalf("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}

	token, err := signer.Issue("monitor", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn, _, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", token), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	//1.- The same token is accepted as a Bearer header.
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	bearer, _, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), header)
	if err != nil {
		t.Fatalf("dial with bearer token: %v", err)
	}
	defer bearer.Close()
	waitForClients(t, hub, 2)

	header = http.Header{"Authorization": []string{"Bearer forged"}}
	if _, resp, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), header); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected a forged bearer token to be rejected, got %v", err)
	}
}

func TestHubEnforcesClientLimit(t *testing.T) {
	hub, _, server := newFeedServer(t, HubOptions{MaxClients: 1})
	conn, _, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	_, resp, err := websockettest.Dial(websockettest.FeedURL(server.URL, "/ws", ""), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected second client to be refused, err=%v resp=%+v", err, resp)
	}
}

func TestHubDropsPeersThatStopAnsweringPings(t *testing.T) {
	hub, _, server := newFeedServer(t, HubOptions{PingInterval: 50 * time.Millisecond})
	conn, _, err := websockettest.DialIgnoringPongs(websockettest.FeedURL(server.URL, "/ws", ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)
	waitForClients(t, hub, 0)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ops.example/"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Fatalf("expected requests without origin to pass")
	}
	req.Header.Set("Origin", "https://OPS.example")
	if !check(req) {
		t.Fatalf("expected allowed origin to pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("expected foreign origin to be rejected")
	}
}
