package wsstream

import (
	"context"

	"github.com/coder/websocket"
)

type conn struct {
	ws *websocket.Conn
}

func dial(ctx context.Context, url string) (*conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &conn{ws: ws}, nil
}

func (c *conn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

func (c *conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "closed")
}
