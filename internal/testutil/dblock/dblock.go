// Package dblock serializes Postgres integration tests across packages by holding a loopback listener.
package dblock

import (
	"net"
	"testing"
	"time"
)

const lockAddr = "127.0.0.1:45432"

// Acquire blocks until the lock is free and releases it when tb finishes.
func Acquire(tb testing.TB) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Minute)
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			tb.Cleanup(func() { ln.Close() })
			return
		}
		if time.Now().After(deadline) {
			tb.Fatalf("dblock: timed out waiting for %s: %v", lockAddr, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
