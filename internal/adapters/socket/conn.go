package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"location-tracker/internal/ports"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// Peers are expected to pong within this window.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Conn is a ports.Conn over a gorilla WebSocket. Send is safe for
// concurrent use; Receive must be called from a single goroutine.
type Conn struct {
	ws    *websocket.Conn
	codec Codec

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConn wraps an established WebSocket. When keepalive is true the
// connection pings the peer and expects pongs before the read deadline.
func NewConn(ws *websocket.Conn, codec Codec, keepalive bool) *Conn {
	c := &Conn{ws: ws, codec: codec, done: make(chan struct{})}

	if keepalive {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})

		c.wg.Add(1)
		go c.pingLoop()
	}

	return c
}

func (c *Conn) Send(event string, payload any) error {
	frame, err := c.codec.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(c.codec.FrameType(), frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func (c *Conn) Receive() (ports.Message, error) {
	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			return ports.Message{}, err
		}

		switch kind {
		case websocket.TextMessage:
			event, data, err := decodeJSON(frame)
			if err != nil {
				return ports.Message{}, err
			}
			return ports.NewMessage(event, data, json.Unmarshal), nil
		case websocket.BinaryMessage:
			event, data, err := decodeCBOR(frame)
			if err != nil {
				return ports.Message{}, err
			}
			return ports.NewMessage(event, data, unmarshalCBOR), nil
		}
	}
}

// Close sends a close frame, releases the socket and waits for the
// keepalive goroutine. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Dialer opens event connections to the rebroadcast server.
type Dialer struct {
	Codec            Codec
	HandshakeTimeout time.Duration
	Header           http.Header
	Keepalive        bool
}

func NewDialer(codec Codec) *Dialer {
	return &Dialer{Codec: codec, HandshakeTimeout: 10 * time.Second, Keepalive: true}
}

func (d *Dialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	if d.Codec == nil {
		return nil, errors.New("socket: dialer has no codec")
	}

	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := wd.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return NewConn(ws, d.Codec, d.Keepalive), nil
}
