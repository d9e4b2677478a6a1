// internal/transport/client.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/cgs/internal/table"
)

// Conn is a peer's websocket connection to a table authority. It implements
// peer.Sender.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to a table websocket endpoint, passing token as the
// ?token= query parameter when set.
func Dial(ctx context.Context, endpoint, token string) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	ws.SetReadLimit(1 << 22)
	return &Conn{ws: ws}, nil
}

// SendToAuthority writes one request. The authority fills in the peer id.
func (c *Conn) SendToAuthority(req table.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, req)
}

// Listen reads events and passes each to apply until the connection closes
// or ctx is cancelled. A normal close returns nil.
func (c *Conn) Listen(ctx context.Context, apply func(table.Event)) error {
	for {
		var ev table.Event
		if err := wsjson.Read(ctx, c.ws, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		apply(ev)
	}
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "bye")
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}
