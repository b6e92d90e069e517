// Package websockettest holds helpers for tests that talk to the change feed.
package websockettest

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"capturerig/director/internal/events"
)

// FeedURL converts an httptest server URL into the websocket feed address,
// appending the viewer token when one is supplied.
func FeedURL(serverURL, path, token string) string {
	target := "ws" + strings.TrimPrefix(serverURL, "http") + path
	if token != "" {
		target += "?auth_token=" + url.QueryEscape(token)
	}
	return target
}

// Dial connects to the feed.
func Dial(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(urlStr, header)
}

// DialIgnoringPongs establishes a connection and disables the automatic pong
// responses so that tests can simulate an unresponsive peer.
func DialIgnoringPongs(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := Dial(urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })
	return conn, resp, nil
}

// ReadChange waits up to timeout for the next change notification.
func ReadChange(conn *websocket.Conn, timeout time.Duration) (events.Change, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return events.Change{}, err
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return events.Change{}, err
	}
	return events.ParseJSON(payload)
}
