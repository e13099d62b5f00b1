package testutil

import (
	"fmt"
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/ddnet/internal/schema"
)

// NodeID returns a fixed logical node id whose byte order follows n, so
// tests can predict iteration order:
//
//	NodeID(1) // 00000000-0000-0000-0000-000000000001
func NodeID(n int) schema.NodeID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012x", n))
}

// FreeAddr returns a loopback address with a port that was free a moment
// ago.
func FreeAddr(t testing.TB) schema.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("release port: %v", err)
	}
	return schema.Addr(addr)
}
