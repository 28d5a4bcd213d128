package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nhooyr.io/websocket"
)

func TestEventsURL(t *testing.T) {
	original := apiEndpoint
	defer func() { apiEndpoint = original }()

	apiEndpoint = "https://treasury.example/"
	if got := eventsURL(4); got != "wss://treasury.example/v1/events?cursor=4" {
		t.Fatalf("unexpected url %q", got)
	}
	apiEndpoint = "http://localhost:8080"
	if got := eventsURL(0); got != "ws://localhost:8080/v1/events?cursor=0" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestWatchPrintsCommits(t *testing.T) {
	var gotCursor, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("cursor")
		gotAuth = r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for _, msg := range []string{`{"sequence":3}`, `{"sequence":4}`} {
			if err := conn.Write(context.Background(), websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	originalEndpoint, originalToken := apiEndpoint, apiToken
	defer func() { apiEndpoint, apiToken = originalEndpoint, originalToken }()

	var stdout, stderr bytes.Buffer
	code := run([]string{"--api", srv.URL, "--token", "abc", "watch", "--cursor", "2", "--count", "2"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("watch: exit %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || lines[1] != `{"sequence":4}` {
		t.Fatalf("unexpected output %q", stdout.String())
	}
	if gotCursor != "2" || gotAuth != "Bearer abc" {
		t.Fatalf("unexpected handshake cursor=%q auth=%q", gotCursor, gotAuth)
	}
}
