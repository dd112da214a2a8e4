package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yllada/wa-desktop/common"
)

// peerBacklogLimit bounds the frames waiting to be written to one peer.
// A peer that falls this far behind is disconnected rather than skipped.
const peerBacklogLimit = 8192

// Handler answers one request. The returned value is encoded as the
// result payload; a non-nil error is sent back as an error frame.
type Handler func(ctx context.Context, payload RawMessage) (any, error)

// Server is the shell side of the bridge. It implements common.Sink so
// the supervisor can publish straight into it.
type Server struct {
	path  string
	token string
	log   common.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	peers    map[*peer]bool // value reports whether the peer is authenticated
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath and accept
// peers presenting token.
func NewServer(socketPath, token string, log common.Logger) *Server {
	return &Server{
		path:     socketPath,
		token:    token,
		log:      log,
		handlers: make(map[string]Handler),
		peers:    make(map[*peer]bool),
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Handle registers the handler of a request channel. Subscription
// channels cannot be invoked.
func (s *Server) Handle(channel string, h Handler) {
	if IsSubscriptionChannel(channel) {
		panic("bridge: cannot handle subscription channel " + channel)
	}
	s.mu.Lock()
	s.handlers[channel] = h
	s.mu.Unlock()
}

// Listen creates the socket. It is separate from Serve so the caller can
// start the UI process once the socket exists.
func (s *Server) Listen() error {
	listener, err := listenSocket(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		listener.Close()
		return common.ErrBridgeClosed
	}
	s.listener = listener
	s.log.Info("Bridge listening on %s", s.path)
	return nil
}

// listenSocket creates a Unix socket readable only by the current user,
// replacing a stale socket left by a previous run.
func listenSocket(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}
	return listener, nil
}

// Serve accepts peers until ctx is cancelled or the server is closed.
// Listen is called first if it has not been.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		listener = s.listener
		s.mu.Unlock()
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accepting bridge connection: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close stops accepting peers, disconnects existing ones and removes the
// socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	if listener == nil {
		return nil
	}
	err := listener.Close()
	os.Remove(s.path)
	return err
}

// Peers returns the number of authenticated peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, authenticated := range s.peers {
		if authenticated {
			n++
		}
	}
	return n
}

// Publish broadcasts an event to every authenticated peer. It never
// blocks. Every peer receives every event in order; a peer whose backlog
// reaches peerBacklogLimit is disconnected.
func (s *Server) Publish(channel string, payload any) {
	if !IsSubscriptionChannel(channel) {
		s.log.Warn("Refusing to publish on non-subscription channel %q", channel)
		return
	}

	raw, err := marshal(payload)
	if err != nil {
		s.log.Error("Failed to encode %s event: %v", channel, err)
		return
	}
	data, err := marshal(Frame{Type: FrameEvent, Channel: channel, Payload: raw})
	if err != nil {
		s.log.Error("Failed to encode %s frame: %v", channel, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for p, authenticated := range s.peers {
		if !authenticated {
			continue
		}
		if !p.offer(data) {
			s.log.Warn("Bridge peer is %d frames behind, disconnecting it", peerBacklogLimit)
			p.close()
		}
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	p := newPeer(conn)
	defer p.close()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.peers[p] = false
	s.mu.Unlock()

	dec := newDecoder(conn)
	if err := s.handshake(conn, dec); err != nil {
		s.log.Warn("Bridge handshake failed: %v", err)
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		return
	}

	// Mark the peer before acknowledging so events published after the
	// client's Dial returns are queued behind the hello frame.
	s.mu.Lock()
	s.peers[p] = true
	s.mu.Unlock()
	if err := writeFrame(conn, Frame{Type: FrameHello}); err != nil {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		return
	}
	s.log.Debug("Bridge peer connected")

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		s.log.Debug("Bridge peer disconnected")
	}()

	go p.writeLoop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			return
		}
		if frame.Type != FrameInvoke {
			s.log.Debug("Ignoring %q frame from bridge peer", frame.Type)
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			p.reply(s.dispatch(ctx, frame))
		}()
	}
}

// handshake reads the hello frame and checks the capability token. A
// rejected peer gets an error frame; an accepted one is answered by the
// caller once it is registered.
func (s *Server) handshake(conn net.Conn, dec interface{ Decode(any) error }) error {
	conn.SetDeadline(time.Now().Add(common.HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	var hello Frame
	if err := dec.Decode(&hello); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if hello.Type == FrameHello && subtle.ConstantTimeCompare([]byte(hello.Token), []byte(s.token)) == 1 {
		return nil
	}
	writeFrame(conn, Frame{Type: FrameError, Error: common.ErrUnauthorized.Error()})
	return common.ErrUnauthorized
}

// dispatch runs the handler of an invoke frame and builds the reply.
func (s *Server) dispatch(ctx context.Context, frame Frame) Frame {
	s.mu.Lock()
	h, ok := s.handlers[frame.Channel]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("Rejected request on unknown channel %q", frame.Channel)
		return Frame{Type: FrameError, ID: frame.ID, Channel: frame.Channel, Error: common.ErrUnknownChannel.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, common.RequestTimeout)
	defer cancel()

	result, err := h(ctx, frame.Payload)
	if err != nil {
		return Frame{Type: FrameError, ID: frame.ID, Channel: frame.Channel, Error: err.Error()}
	}
	raw, err := marshal(result)
	if err != nil {
		return Frame{Type: FrameError, ID: frame.ID, Channel: frame.Channel, Error: err.Error()}
	}
	return Frame{Type: FrameResult, ID: frame.ID, Channel: frame.Channel, Payload: raw}
}

// peer is one authenticated UI connection. All writes go through the
// backlog so frames are written whole and in order.
type peer struct {
	conn      net.Conn
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	backlog [][]byte
	wake    chan struct{}
}

func newPeer(conn net.Conn) *peer {
	return &peer{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

// offer appends an event frame without blocking. It reports false when
// the backlog is full.
func (p *peer) offer(data []byte) bool {
	select {
	case <-p.done:
		return true
	default:
	}
	return p.enqueue(data, peerBacklogLimit)
}

// reply appends a result frame. Replies are never refused.
func (p *peer) reply(frame Frame) {
	data, err := marshal(frame)
	if err != nil {
		return
	}
	p.enqueue(data, 0)
}

// enqueue appends data unless limit is positive and already reached.
func (p *peer) enqueue(data []byte, limit int) bool {
	p.mu.Lock()
	if limit > 0 && len(p.backlog) >= limit {
		p.mu.Unlock()
		return false
	}
	p.backlog = append(p.backlog, data)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}

		p.mu.Lock()
		batch := p.backlog
		p.backlog = nil
		p.mu.Unlock()

		for _, data := range batch {
			if _, err := p.conn.Write(data); err != nil {
				p.close()
				return
			}
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// errorFromFrame converts an error frame back into an error, restoring
// the bridge sentinels.
func errorFromFrame(frame Frame) error {
	switch frame.Error {
	case common.ErrUnauthorized.Error():
		return common.ErrUnauthorized
	case common.ErrUnknownChannel.Error():
		return fmt.Errorf("%w: %s", common.ErrUnknownChannel, frame.Channel)
	case "":
		return errors.New("bridge: empty error frame")
	default:
		return errors.New(frame.Error)
	}
}
