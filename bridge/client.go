package bridge

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/wa-desktop/common"
)

// Client is the UI side of the bridge. Listeners run on the client's
// read goroutine in arrival order and must not block for long.
type Client struct {
	conn net.Conn
	log  common.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan Frame
	listeners map[string][]func(RawMessage)
	closed    bool
	err       error

	done chan struct{}
}

// Dial connects to the bridge at socketPath and presents token.
func Dial(ctx context.Context, socketPath, token string, log common.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to bridge: %w", err)
	}

	deadline := time.Now().Add(common.HandshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	dec := newDecoder(conn)
	if err := writeFrame(conn, Frame{Type: FrameHello, Token: token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	var reply Frame
	if err := dec.Decode(&reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if reply.Type != FrameHello {
		conn.Close()
		return nil, errorFromFrame(reply)
	}
	conn.SetDeadline(time.Time{})

	c := &Client{
		conn:      conn,
		log:       log,
		pending:   make(map[string]chan Frame),
		listeners: make(map[string][]func(RawMessage)),
		done:      make(chan struct{}),
	}
	go c.readLoop(dec)
	return c, nil
}

func writeFrame(conn net.Conn, frame Frame) error {
	data, err := marshal(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

func (c *Client) readLoop(dec interface{ Decode(any) error }) {
	var err error
	for {
		var frame Frame
		if err = dec.Decode(&frame); err != nil {
			break
		}

		switch frame.Type {
		case FrameEvent:
			c.mu.Lock()
			listeners := append([]func(RawMessage){}, c.listeners[frame.Channel]...)
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(frame.Payload)
			}
		case FrameResult, FrameError:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		}
	}

	c.mu.Lock()
	c.closed = true
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.done)
}

// on registers a decoding listener for a subscription channel.
func on[T any](c *Client, channel string, fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[channel] = append(c.listeners[channel], func(raw RawMessage) {
		var v T
		if err := unmarshal(raw, &v); err != nil {
			c.log.Warn("Dropping malformed %s event: %v", channel, err)
			return
		}
		fn(v)
	})
}

// OnQRCode subscribes to QR images (data URLs, or the raw payload when
// rendering failed).
func (c *Client) OnQRCode(fn func(qr string)) {
	on(c, common.ChannelQRCode, fn)
}

// OnConnectionUpdate subscribes to lifecycle updates.
func (c *Client) OnConnectionUpdate(fn func(common.ConnectionUpdate)) {
	on(c, common.ChannelConnectionUpdate, fn)
}

// OnMessage subscribes to received messages.
func (c *Client) OnMessage(fn func(common.InboundMessage)) {
	on(c, common.ChannelNewMessage, fn)
}

// RemoveAllListeners drops every listener of channel.
func (c *Client) RemoveAllListeners(channel string) {
	c.mu.Lock()
	delete(c.listeners, channel)
	c.mu.Unlock()
}

// Invoke performs a request on channel and decodes the result into reply.
func (c *Client) Invoke(ctx context.Context, channel string, args, reply any) error {
	var payload RawMessage
	if args != nil {
		raw, err := marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", channel, err)
		}
		payload = raw
	}

	id := uuid.NewString()
	ch := make(chan Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return common.ErrBridgeClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := writeFrame(c.conn, Frame{Type: FrameInvoke, ID: id, Channel: channel, Payload: payload})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("%w: %v", common.ErrBridgeClosed, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return common.ErrBridgeClosed
		}
		if frame.Type == FrameError {
			return errorFromFrame(frame)
		}
		if reply == nil {
			return nil
		}
		if err := unmarshal(frame.Payload, reply); err != nil {
			return fmt.Errorf("decoding %s result: %w", channel, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// SendMessage asks the shell to send a text message.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, message string) (SendResult, error) {
	var result SendResult
	err := c.Invoke(ctx, common.ChannelSendMessage, SendMessageArgs{PhoneNumber: phoneNumber, Message: message}, &result)
	return result, err
}

// GetContacts fetches the address book.
func (c *Client) GetContacts(ctx context.Context) ([]common.Contact, error) {
	var contacts []common.Contact
	if err := c.Invoke(ctx, common.ChannelGetContacts, nil, &contacts); err != nil {
		return nil, err
	}
	if contacts == nil {
		contacts = []common.Contact{}
	}
	return contacts, nil
}

// Done is closed when the connection to the shell is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close disconnects and waits for the read goroutine to exit.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}
