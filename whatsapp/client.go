package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/yllada/wa-desktop/common"
)

// pairingClientName is shown on the phone in the linked devices list.
const pairingClientName = "Chrome (Linux)"

// Client is one whatsmeow connection behind the common.ProtocolClient contract.
type Client struct {
	wa     *whatsmeow.Client
	device *store.Device
	log    common.Logger

	mu          sync.Mutex
	subscribers map[int]func(common.Event)
	nextID      int
	qrCancel    context.CancelFunc
	wg          sync.WaitGroup
}

// newClient wraps a whatsmeow client for device.
func newClient(device *store.Device, log common.Logger) *Client {
	wa := whatsmeow.NewClient(device, newLibraryLogger(log, "Client"))
	wa.EnableAutoReconnect = false

	c := &Client{
		wa:          wa,
		device:      device,
		log:         log,
		subscribers: make(map[int]func(common.Event)),
	}
	wa.AddEventHandler(c.handleEvent)
	return c
}

// Subscribe registers handler for translated events.
func (c *Client) Subscribe(handler func(common.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subscribers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Client) emit(ev common.Event) {
	c.mu.Lock()
	handlers := make([]func(common.Event), 0, len(c.subscribers))
	for _, h := range c.subscribers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) handleEvent(evt interface{}) {
	for _, ev := range c.translate(evt) {
		c.emit(ev)
	}
}

// Connect opens the websocket. Unregistered devices get a QR code stream.
func (c *Client) Connect(ctx context.Context) error {
	if c.device.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		qrChan, err := c.wa.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			if !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
				return fmt.Errorf("requesting QR channel: %w", err)
			}
		} else {
			c.mu.Lock()
			c.qrCancel = cancel
			c.mu.Unlock()
			c.wg.Add(1)
			go c.watchQR(qrCtx, qrChan)
		}
	}

	c.emit(lifecycle(common.ConnectionUpdate{Connection: common.ConnectionConnecting}))
	return c.wa.Connect()
}

// watchQR turns QR channel items into lifecycle events.
func (c *Client) watchQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	defer c.wg.Done()

	for {
		var item whatsmeow.QRChannelItem
		select {
		case <-ctx.Done():
			return
		case next, ok := <-qrChan:
			if !ok {
				return
			}
			item = next
		}

		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(lifecycle(common.ConnectionUpdate{QR: item.Code}))
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info("QR code scanned, device paired")
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(closed(common.ReasonTimedOut, "QR code was not scanned in time"))
		case whatsmeow.QRChannelEventError:
			c.log.Warn("QR pairing failed: %v", item.Error)
		default:
			c.log.Warn("QR login ended: %s", item.Event)
		}
	}
}

// Disconnect closes the websocket and stops the QR stream.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.qrCancel
	c.qrCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wa.Disconnect()
	c.wg.Wait()
}

// RequestPairingCode links the device to phoneNumber with a pairing code.
// It fails with common.ErrNotConnected until the socket is up.
func (c *Client) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	if !c.wa.IsConnected() {
		return "", common.ErrNotConnected
	}
	code, err := c.wa.PairPhone(ctx, phoneNumber, true, whatsmeow.PairClientChrome, pairingClientName)
	if errors.Is(err, whatsmeow.ErrNotConnected) {
		return "", fmt.Errorf("%w: %w", common.ErrNotConnected, err)
	}
	return code, err
}

// SendText sends a plain text message to address.
func (c *Client) SendText(ctx context.Context, address, text string) error {
	jid, err := types.ParseJID(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	if !c.wa.IsConnected() {
		return common.ErrNotConnected
	}

	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return err
	}
	c.log.Debug("Sent message %s to %s", resp.ID, jid)
	return nil
}

// Contacts returns the contacts known to the device store, sorted by address.
func (c *Client) Contacts(ctx context.Context) ([]common.Contact, error) {
	all, err := c.wa.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]common.Contact, 0, len(all))
	for jid, info := range all {
		contacts = append(contacts, convertContact(jid, info))
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

// Factory builds Clients from Credentials loaded by a Store.
type Factory struct {
	Logger common.Logger
}

// New returns a Client for the device in opts.Credentials.
func (f *Factory) New(ctx context.Context, opts common.ClientOptions) (common.ProtocolClient, error) {
	creds, ok := opts.Credentials.(*Credentials)
	if !ok || creds.Device == nil {
		return nil, common.ErrInvalidCredential
	}

	if !opts.Version.IsZero() {
		store.SetWAVersion(store.WAVersionContainer(opts.Version))
	}
	store.DeviceProps.Os = proto.String(common.AppName)
	store.DeviceProps.RequireFullSync = proto.Bool(opts.SyncFullHistory)

	log := f.Logger
	if log == nil {
		log = common.GetLogger()
	}
	return newClient(creds.Device, log), nil
}

// VersionResolver fetches the current web client version.
type VersionResolver struct {
	HTTPClient *http.Client
}

// Resolve returns the latest version. On failure it returns the version
// built into the library together with the error.
func (r VersionResolver) Resolve(ctx context.Context) (common.Version, error) {
	httpClient := r.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	latest, err := whatsmeow.GetLatestVersion(ctx, httpClient)
	if err != nil {
		return common.Version(store.GetWAVersion()), err
	}
	return common.Version(*latest), nil
}
