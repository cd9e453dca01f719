package wsnet

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// Client is one websocket link to a peer.
type Client struct {
	PeerID string
	Conn   *websocket.Conn
	Send   chan []byte

	msgType websocket.MessageType
	done    chan struct{}
}

func newClient(peerID string, conn *websocket.Conn, queue int, msgType websocket.MessageType) *Client {
	return &Client{
		PeerID:  peerID,
		Conn:    conn,
		Send:    make(chan []byte, queue),
		msgType: msgType,
		done:    make(chan struct{}),
	}
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
// A write stuck longer than timeout closes the link.
func (c *Client) WritePump(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.Send:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := c.Conn.Write(wctx, c.msgType, msg)
			cancel()
			if err != nil {
				c.Conn.CloseNow()
				return
			}
		}
	}
}

// enqueue hands data to the write pump without waiting. A full queue fails
// the send; reliable messages are retried by the session until acknowledged.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}
