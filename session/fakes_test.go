package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yllada/wa-desktop/common"
)

const waitTimeout = 2 * time.Second

type sentMessage struct {
	address string
	text    string
}

// fakeClient is a scriptable ProtocolClient.
type fakeClient struct {
	mu           sync.Mutex
	handlers     map[int]func(common.Event)
	nextHandler  int
	connectErr   error
	connects     int
	disconnects  int
	sent         []sentMessage
	sendErr      error
	pairingCode  string
	pairingErr   error
	pairingCalls []string
	pairingGate  chan struct{} // when set, pairing results wait for it to close
	contacts     []common.Contact
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[int]func(common.Event)), pairingCode: "ABCD-EFGH"}
}

func (c *fakeClient) Subscribe(handler func(common.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	c.pairingCalls = append(c.pairingCalls, phone)
	gate := c.pairingGate
	code, err := c.pairingCode, c.pairingErr
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return code, err
}

func (c *fakeClient) SendText(ctx context.Context, address, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{address: address, text: text})
	return c.sendErr
}

func (c *fakeClient) Contacts(ctx context.Context) ([]common.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contacts, nil
}

// emit calls the subscribed handlers like the protocol library would.
func (c *fakeClient) emit(ev common.Event) {
	c.mu.Lock()
	handlers := make([]func(common.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *fakeClient) emitUpdate(u common.ConnectionUpdate) {
	c.emit(common.Event{Kind: common.EventLifecycle, Update: &u})
}

func (c *fakeClient) emitClose(reason common.DisconnectReason) {
	c.emitUpdate(common.ConnectionUpdate{
		Connection:     common.ConnectionClose,
		LastDisconnect: &common.Disconnect{Reason: reason, Message: reason.String(), Date: time.Now()},
	})
}

func (c *fakeClient) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeClient) pairingRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pairingCalls...)
}

// fakeFactory hands out fakeClients and records the options it was given.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	options []common.ClientOptions
	prepare func(n int, c *fakeClient)
	created chan *fakeClient
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(chan *fakeClient, 16)}
}

func (f *fakeFactory) New(ctx context.Context, opts common.ClientOptions) (common.ProtocolClient, error) {
	c := newFakeClient()
	f.mu.Lock()
	if f.prepare != nil {
		f.prepare(len(f.clients), c)
	}
	f.clients = append(f.clients, c)
	f.options = append(f.options, opts)
	f.mu.Unlock()
	f.created <- c
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// next waits for the next client to be created.
func (f *fakeFactory) next(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case c := <-f.created:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a client")
		return nil
	}
}

type fakeCredentials struct{ registered bool }

func (c fakeCredentials) Registered() bool { return c.registered }

// fakeStore is an in-memory CredentialStore.
type fakeStore struct {
	mu      sync.Mutex
	loads   int
	loadErr error
	saves   chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{saves: make(chan string, 16)}
}

func (s *fakeStore) Load(ctx context.Context, namespace string) (common.Credentials, common.SaveFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, nil, s.loadErr
	}
	save := func(ctx context.Context) error {
		s.saves <- namespace
		return nil
	}
	return fakeCredentials{}, save, nil
}

func (s *fakeStore) Location(namespace string) string { return "/tmp/auth/" + namespace + ".db" }

func (s *fakeStore) Reset(namespace string) error { return nil }

type fakeVersions struct {
	version common.Version
	err     error
}

func (v fakeVersions) Resolve(ctx context.Context) (common.Version, error) {
	return v.version, v.err
}

type published struct {
	channel string
	payload any
}

// recordingSink records every publication in order.
type recordingSink struct {
	mu     sync.Mutex
	events []published
	ch     chan published
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan published, 256)}
}

func (s *recordingSink) Publish(channel string, payload any) {
	p := published{channel: channel, payload: payload}
	s.mu.Lock()
	s.events = append(s.events, p)
	s.mu.Unlock()
	s.ch <- p
}

func (s *recordingSink) on(channel string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.events {
		if e.channel == channel {
			out = append(out, e.payload)
		}
	}
	return out
}

// expect waits for the next publication on channel, skipping other channels.
func (s *recordingSink) expect(t *testing.T, channel string) any {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case p := <-s.ch:
			if p.channel == channel {
				return p.payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", channel)
			return nil
		}
	}
}

// expectUpdate waits for the next connection-update.
func (s *recordingSink) expectUpdate(t *testing.T) common.ConnectionUpdate {
	t.Helper()
	u, ok := s.expect(t, common.ChannelConnectionUpdate).(common.ConnectionUpdate)
	if !ok {
		t.Fatalf("connection-update payload has unexpected type")
	}
	return u
}

type harness struct {
	sup     *Supervisor
	factory *fakeFactory
	store   *fakeStore
	sink    *recordingSink
	first   *fakeClient
}

func startHarness(t *testing.T, modify func(*Options)) *harness {
	t.Helper()
	h := &harness{
		factory: newFakeFactory(),
		store:   newFakeStore(),
		sink:    newRecordingSink(),
	}
	opts := Options{
		Config:  Config{Namespace: "test"},
		Store:   h.store,
		Factory: h.factory,
		Sink:    h.sink,
		Logger:  common.NewLogger(io.Discard, common.LevelDebug),
	}
	if modify != nil {
		modify(&opts)
	}

	sup, err := Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.sup = sup
	h.first = h.factory.next(t)
	return h
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")

// logBuffer collects log output from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// pairingUpdates returns the published updates that carry a pairing code.
func (s *recordingSink) pairingUpdates() []common.ConnectionUpdate {
	var out []common.ConnectionUpdate
	for _, p := range s.on(common.ChannelConnectionUpdate) {
		if u, ok := p.(common.ConnectionUpdate); ok && u.PairingCode != "" {
			out = append(out, u)
		}
	}
	return out
}
