// Package client sends one-shot gossip messages to a peer over TCP
// (spec §4.1, §4.2): dial, write one framed Message, close the write half,
// and return. Grounded on original_source/lib.rs's call sites (every
// gossip RPC in the original is a single fire-and-forget send, never a
// persistent connection) and on the teacher's pkg/rpc/client.go for the
// dial/deadline/close idiom.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/wire"
)

// DefaultDialTimeout bounds how long Send waits to establish the TCP
// connection before giving up.
const DefaultDialTimeout = 5 * time.Second

// Send dials addr, writes msg as a single framed message, and closes the
// write half so the peer's server sees a clean end of frame. It does not
// wait for or read a reply: the gossip protocol's requests and responses
// are both one-shot sends on separate connections (spec §4.2).
func Send(ctx context.Context, addr string, msg wire.Message) error {
	dialer := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip/client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("gossip/client: set write deadline for %s: %w", addr, err)
		}
	}

	if err := wire.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("gossip/client: write frame to %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return fmt.Errorf("gossip/client: close write half to %s: %w", addr, err)
		}
	}

	return nil
}
