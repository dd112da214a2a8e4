package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/wa-desktop/common"
)

// Config holds the settings a Supervisor reuses for every Session.
type Config struct {
	// PairingPhoneNumber requests pairing codes for this number when set.
	PairingPhoneNumber string
	// Namespace selects the credential set.
	Namespace string
	// ReconnectDelay is the pause between retiring a Session and starting the next.
	ReconnectDelay time.Duration
}

// Options are the collaborators of a Supervisor.
type Options struct {
	Config   Config
	Store    common.CredentialStore
	Versions common.VersionResolver // optional, the client default is used without it
	Factory  common.ClientFactory
	Renderer QRRenderer // optional, raw payloads are published without it
	Sink     common.Sink
	Logger   common.Logger // optional, defaults to the application logger
}

// Status is a snapshot of the supervisor state.
type Status struct {
	SessionID      string
	Phase          Phase
	Version        common.Version
	Sessions       int
	LastDisconnect *common.Disconnect
}

type outcome int

const (
	outcomeStopped outcome = iota
	outcomeReconnect
	outcomeHalted
)

// Supervisor owns the live Session and replaces it when the connection drops.
type Supervisor struct {
	opts Options
	log  common.Logger

	mu       sync.RWMutex
	current  *Session
	halted   bool
	sessions int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// Start loads the credentials, builds the first Session and begins
// supervising it. The returned Supervisor runs until ctx is cancelled,
// Stop is called, or a terminal closure halts it.
func Start(ctx context.Context, opts Options) (*Supervisor, error) {
	if opts.Store == nil || opts.Factory == nil || opts.Sink == nil {
		return nil, errors.New("session: store, factory and sink are required")
	}
	if opts.Config.Namespace == "" {
		opts.Config.Namespace = common.DefaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = common.GetLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	sup := &Supervisor{
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	sess, err := sup.newSession()
	if err != nil {
		cancel()
		return nil, err
	}

	go sup.run(sess)
	return sup, nil
}

// newSession builds, subscribes and connects a fresh Session.
func (sup *Supervisor) newSession() (*Session, error) {
	ns := sup.opts.Config.Namespace

	creds, save, err := sup.opts.Store.Load(sup.ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("loading credentials %q: %w", ns, err)
	}

	var version common.Version
	if sup.opts.Versions != nil {
		if version, err = sup.opts.Versions.Resolve(sup.ctx); err != nil {
			sup.log.Warn("Could not fetch latest client version, using built-in: %v", err)
			version = common.Version{}
		}
	}

	client, err := sup.opts.Factory.New(sup.ctx, common.ClientOptions{
		Version:         version,
		Credentials:     creds,
		SyncFullHistory: false,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	sessCtx, cancel := context.WithCancel(sup.ctx)
	sess := &Session{
		ID:        uuid.NewString(),
		Version:   version,
		StartedAt: time.Now(),
		client:    client,
		save:      save,
		phase:     PhaseIdle,
		events:    make(chan common.Event, eventQueueSize),
		retired:   make(chan struct{}),
		ctx:       sessCtx,
		cancel:    cancel,
	}
	sess.unsubscribe = client.Subscribe(func(ev common.Event) {
		sess.deliver(ev)
	})

	sup.mu.Lock()
	sup.current = sess
	sup.sessions++
	sup.mu.Unlock()

	if version.IsZero() {
		sup.log.Info("Starting session %s (registered: %v)", sess.ID, creds != nil && creds.Registered())
	} else {
		sup.log.Info("Starting session %s with client version %s (registered: %v)",
			sess.ID, version, creds != nil && creds.Registered())
	}

	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		if err := client.Connect(sessCtx); err != nil {
			if sessCtx.Err() != nil {
				return
			}
			sup.log.Warn("Connect failed for session %s: %v", sess.ID, err)
			sess.deliver(closeEvent(common.ReasonConnectionLost, err.Error()))
		}
	}()

	return sess, nil
}

// closeEvent builds the close update used for failures the client did not report.
func closeEvent(reason common.DisconnectReason, message string) common.Event {
	return common.Event{
		Kind: common.EventLifecycle,
		Update: &common.ConnectionUpdate{
			Connection: common.ConnectionClose,
			LastDisconnect: &common.Disconnect{
				Reason:  reason,
				Message: message,
				Date:    time.Now(),
			},
		},
	}
}

// run drives Sessions one after another until the supervisor stops or halts.
func (sup *Supervisor) run(sess *Session) {
	defer close(sup.done)

	for {
		result := sup.drive(sess)
		sess.retire()

		switch result {
		case outcomeStopped:
			return
		case outcomeHalted:
			sup.mu.Lock()
			sup.halted = true
			sup.mu.Unlock()
			sup.log.Error("%v. Delete %s to start fresh.",
				common.ErrTerminalSession, sup.opts.Store.Location(sup.opts.Config.Namespace))
			return
		}

		if delay := sup.opts.Config.ReconnectDelay; delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-sup.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if sup.ctx.Err() != nil {
			return
		}

		next, err := sup.newSession()
		if err != nil {
			sup.log.Error("Reconnect failed: %v", err)
			return
		}
		sess = next
	}
}

// drive handles the events of sess until it closes or the supervisor stops.
func (sup *Supervisor) drive(sess *Session) outcome {
	for {
		select {
		case <-sup.ctx.Done():
			return outcomeStopped
		case ev := <-sess.events:
			if result, closed := sup.handle(sess, ev); closed {
				return result
			}
		}
	}
}

func (sup *Supervisor) handle(sess *Session, ev common.Event) (outcome, bool) {
	switch ev.Kind {
	case common.EventCredentialsUpdated:
		sup.saveCredentials(sess)
	case common.EventMessages:
		sup.forwardMessages(ev.Messages)
	case common.EventLifecycle:
		if ev.Update != nil {
			return sup.handleUpdate(sess, *ev.Update)
		}
	}
	return outcomeStopped, false
}

func (sup *Supervisor) saveCredentials(sess *Session) {
	if sess.save == nil {
		return
	}
	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		if err := sess.save(sup.ctx); err != nil {
			sup.log.Error("Failed to save credentials: %v", err)
		}
	}()
}

func (sup *Supervisor) handleUpdate(sess *Session, update common.ConnectionUpdate) (outcome, bool) {
	if update.PairingCode != "" {
		if phase := sess.Phase(); phase == PhaseOpen || phase == PhaseClosed {
			sup.log.Info("Discarding pairing code of session %s, already %s", sess.ID, phase)
			return outcomeStopped, false
		}
	}

	switch update.Connection {
	case common.ConnectionConnecting:
		sess.setPhase(PhaseConnecting)
	case common.ConnectionOpen:
		sess.setPhase(PhaseOpen)
		sup.log.Info("Connection open (session %s)", sess.ID)
	}

	if update.QR != "" {
		sess.setPhase(PhaseAwaitingScan)
		sup.publishQR(update.QR)
	}
	if update.PairingCode != "" {
		sess.setPhase(PhaseAwaitingPairing)
	}

	result, closed := outcomeStopped, false
	if update.Connection == common.ConnectionClose {
		if update.LastDisconnect == nil {
			update.LastDisconnect = &common.Disconnect{Reason: common.ReasonConnectionClosed, Date: time.Now()}
		}
		reason := update.LastDisconnect.Reason
		reconnect := !reason.Terminal()
		update.ShouldReconnect = &reconnect
		sess.setClosed(update.LastDisconnect)

		closed = true
		result = outcomeHalted
		if reconnect {
			result = outcomeReconnect
		}
		sup.log.Warn("Connection closed: %s (status %d, reconnect: %v)", reason, int(reason), reconnect)
	}

	sup.opts.Sink.Publish(common.ChannelConnectionUpdate, update)

	if sup.opts.Config.PairingPhoneNumber != "" && update.PairingCode == "" &&
		(update.Connection == common.ConnectionConnecting || update.QR != "") {
		sup.requestPairing(sess)
	}

	return result, closed
}

// publishQR publishes exactly one qr-code event for payload.
func (sup *Supervisor) publishQR(payload string) {
	out := payload
	if r := sup.opts.Renderer; r != nil {
		rendered, err := r.Render(payload)
		if err != nil {
			sup.log.Warn("%v, sending raw payload: %v", common.ErrQRRender, err)
		} else {
			out = rendered
		}
	}
	sup.opts.Sink.Publish(common.ChannelQRCode, out)
}

// requestPairing asks for a pairing code without blocking the event loop.
// The code is fed back to sess as a lifecycle update.
func (sup *Supervisor) requestPairing(sess *Session) {
	if !sess.pairing.CompareAndSwap(false, true) {
		return
	}

	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		defer sess.pairing.Store(false)

		code, err := sess.client.RequestPairingCode(sess.ctx, sup.opts.Config.PairingPhoneNumber)
		if err != nil {
			// The request made on connecting races the dial; the QR that
			// follows asks again.
			if errors.Is(err, common.ErrNotConnected) {
				sup.log.Debug("%v: %v", common.ErrPairingRequest, err)
				return
			}
			sup.log.Warn("%v: %v", common.ErrPairingRequest, err)
			return
		}
		sup.log.Info("Pairing code: %s", code)

		update := &common.ConnectionUpdate{PairingCode: code}
		if !sess.deliver(common.Event{Kind: common.EventLifecycle, Update: update}) {
			sup.log.Info("Discarding pairing code of retired session %s", sess.ID)
		}
	}()
}

func (sup *Supervisor) forwardMessages(batch *common.MessagesUpsert) {
	if batch == nil {
		return
	}
	for _, msg := range batch.Messages {
		if !ShouldForward(batch.Type, msg) {
			continue
		}
		msg.Text = ExtractText(msg.Content)
		sup.opts.Sink.Publish(common.ChannelNewMessage, msg)
	}
}

// Send delivers a text message. Recipients without a domain qualifier get
// the default user domain appended.
func (sup *Supervisor) Send(ctx context.Context, recipient, text string) error {
	address, err := common.NormalizeRecipient(recipient)
	if err != nil {
		return err
	}

	sup.mu.RLock()
	sess := sup.current
	halted := sup.halted
	sup.mu.RUnlock()

	if sess == nil || halted || sess.isRetired() || sess.Phase() != PhaseOpen {
		return common.ErrNotConnected
	}

	if err := sess.client.SendText(ctx, address, text); err != nil {
		return fmt.Errorf("%w: %w", common.ErrTransportFailure, err)
	}
	return nil
}

// Contacts returns the address book of the current Session.
func (sup *Supervisor) Contacts(ctx context.Context) ([]common.Contact, error) {
	sup.mu.RLock()
	sess := sup.current
	halted := sup.halted
	sup.mu.RUnlock()

	if sess == nil || halted || sess.isRetired() {
		return nil, common.ErrNotConnected
	}
	return sess.client.Contacts(ctx)
}

// Phase returns the phase of the current Session, or PhaseHalted.
func (sup *Supervisor) Phase() Phase {
	sup.mu.RLock()
	defer sup.mu.RUnlock()
	if sup.halted {
		return PhaseHalted
	}
	if sup.current == nil {
		return PhaseIdle
	}
	return sup.current.Phase()
}

// Status returns a snapshot of the supervisor state.
func (sup *Supervisor) Status() Status {
	phase := sup.Phase()

	sup.mu.RLock()
	defer sup.mu.RUnlock()
	st := Status{Phase: phase, Sessions: sup.sessions}
	if sup.current != nil {
		st.SessionID = sup.current.ID
		st.Version = sup.current.Version
		st.LastDisconnect = sup.current.LastDisconnect()
	}
	return st
}

// Done is closed when the supervisor stops supervising.
func (sup *Supervisor) Done() <-chan struct{} {
	return sup.done
}

// Stop retires the current Session and waits for background work to finish.
func (sup *Supervisor) Stop() {
	sup.cancel()
	<-sup.done
	sup.wg.Wait()
}
