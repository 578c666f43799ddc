package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// serveWS runs one jrpc2 server per WebSocket connection. Connections take
// the same methods as HTTP and also receive mark and window pushes.
func (rs *RPCServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		rs.l.Warning("rpc: websocket accept: %v", err)
		return
	}
	ch := &wsChannel{conn: conn, ctx: r.Context()}
	srv := jrpc2.NewServer(rs.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	rs.notifier.Register(srv)
	defer rs.notifier.Unregister(srv)
	if err := srv.Wait(); err != nil {
		rs.l.Info("rpc: websocket closed: %v", err)
	}
}
