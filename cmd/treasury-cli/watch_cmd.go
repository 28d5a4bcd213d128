package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"nhooyr.io/websocket"
)

func eventsURL(cursor uint64) string {
	base := strings.TrimRight(apiEndpoint, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/events?cursor=" + strconv.FormatUint(cursor, 10)
}

// runWatch prints committed operations as they arrive, one JSON document per
// line.
func runWatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cursor := fs.Uint64("cursor", 0, "last journal sequence already seen")
	count := fs.Int("count", 0, "exit after this many commits (0 streams forever)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts *websocket.DialOptions
	if token := strings.TrimSpace(apiToken); token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}}}
	}
	conn, _, err := websocket.Dial(ctx, eventsURL(*cursor), opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for seen := 0; *count == 0 || seen < *count; seen++ {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	}
	return 0
}
