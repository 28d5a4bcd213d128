package main

import (
	"fmt"
	"net"

	"golang.org/x/net/netutil"
)

// listen binds addr and, when max is positive, caps the number of
// connections served at once. Further dials wait in the accept backlog.
func listen(addr string, max int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if max > 0 {
		ln = netutil.LimitListener(ln, max)
	}
	return ln, nil
}
