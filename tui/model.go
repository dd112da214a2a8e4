// Package tui is the terminal presentation process. It renders what the
// shell publishes over the bridge and forwards send requests; it holds no
// session state of its own.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skip2/go-qrcode"

	"github.com/yllada/wa-desktop/bridge"
	"github.com/yllada/wa-desktop/common"
)

// maxMessages bounds the message history kept on screen.
const maxMessages = 200

// Sender forwards send requests to the shell.
type Sender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) (bridge.SendResult, error)
}

// Bridge events delivered into the program.
type (
	qrMsg           string
	updateMsg       common.ConnectionUpdate
	inboundMsg      common.InboundMessage
	bridgeClosedMsg struct{}
	sendResultMsg   struct {
		to     string
		result bridge.SendResult
		err    error
	}
)

type field int

const (
	fieldPhone field = iota
	fieldMessage
)

// Model is the bubbletea model of the UI.
type Model struct {
	sender Sender
	theme  theme

	connection  common.ConnectionState
	status      string
	statusErr   bool
	qrImage     bool // a rendered QR image was received
	qrArt       string
	pairingCode string
	shellGone   bool

	messages []common.InboundMessage
	feedback string

	phone   textinput.Model
	text    textinput.Model
	focus   field
	history viewport.Model
	spinner spinner.Model

	width, height int
}

// NewModel creates the UI model.
func NewModel(sender Sender) Model {
	phone := textinput.New()
	phone.Prompt = "To: "
	phone.Placeholder = "phone number, e.g. 15551234567"
	phone.CharLimit = 64
	phone.Focus()

	text := textinput.New()
	text.Prompt = "❯ "
	text.Placeholder = "message"
	text.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(yellow)

	return Model{
		sender:  sender,
		theme:   newTheme(),
		status:  "Starting...",
		phone:   phone,
		text:    text,
		history: viewport.New(0, 0),
		spinner: sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Connected reports whether the shell last announced an open connection.
func (m Model) Connected() bool {
	return m.connection == common.ConnectionOpen
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case qrMsg:
		m.qrImage = msg != ""
		return m, nil

	case updateMsg:
		m.applyUpdate(common.ConnectionUpdate(msg))
		return m, nil

	case inboundMsg:
		m.messages = append(m.messages, common.InboundMessage(msg))
		if len(m.messages) > maxMessages {
			m.messages = m.messages[len(m.messages)-maxMessages:]
		}
		m.refreshHistory()
		return m, nil

	case sendResultMsg:
		switch {
		case msg.err != nil:
			m.feedback = "Send failed: " + msg.err.Error()
		case !msg.result.Success:
			m.feedback = "Send failed: " + msg.result.Error
		default:
			m.feedback = "Sent to " + common.FormatPhoneNumber(msg.to)
		}
		return m, nil

	case bridgeClosedMsg:
		m.shellGone = true
		m.connection = common.ConnectionClose
		m.status = "Shell exited"
		m.statusErr = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab:
		m.toggleFocus()
		return m, nil
	case tea.KeyEnter:
		if m.focus == fieldPhone {
			m.toggleFocus()
			return m, nil
		}
		return m.submit()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}
	return m.updateInputs(msg)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == fieldPhone {
		m.phone, cmd = m.phone.Update(msg)
	} else {
		m.text, cmd = m.text.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == fieldPhone {
		m.focus = fieldMessage
		m.phone.Blur()
		m.text.Focus()
	} else {
		m.focus = fieldPhone
		m.text.Blur()
		m.phone.Focus()
	}
}

// submit validates the form and starts a send. Nothing is sent while the
// connection is not open.
func (m Model) submit() (tea.Model, tea.Cmd) {
	phone := strings.TrimSpace(m.phone.Value())
	text := m.text.Value()

	switch {
	case !m.Connected():
		m.feedback = "Not connected to WhatsApp"
		return m, nil
	case phone == "":
		m.feedback = "Enter a phone number"
		return m, nil
	case strings.TrimSpace(text) == "":
		m.feedback = "Enter a message"
		return m, nil
	}

	m.text.Reset()
	m.feedback = "Sending..."
	sender := m.sender
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), common.RequestTimeout)
		defer cancel()
		result, err := sender.SendMessage(ctx, phone, text)
		return sendResultMsg{to: phone, result: result, err: err}
	}
}

// applyUpdate mirrors a lifecycle update into the status line.
func (m *Model) applyUpdate(u common.ConnectionUpdate) {
	if u.QR != "" {
		m.qrArt = renderQR(u.QR)
		m.status = "Scan the QR code with WhatsApp on your phone"
		m.statusErr = false
	}
	if u.PairingCode != "" && !m.Connected() {
		m.pairingCode = u.PairingCode
		m.status = "Enter the pairing code on your phone"
		m.statusErr = false
	}
	if u.IsNewLogin {
		m.status = "Device linked, connecting..."
	}

	switch u.Connection {
	case common.ConnectionConnecting:
		m.connection = u.Connection
		if u.QR == "" && m.qrArt == "" {
			m.status = "Connecting..."
		}
	case common.ConnectionOpen:
		m.connection = u.Connection
		m.status = "Connected"
		m.statusErr = false
		m.qrArt, m.qrImage, m.pairingCode = "", false, ""
	case common.ConnectionClose:
		m.connection = u.Connection
		m.status, m.statusErr = closeStatus(u), true
		m.qrArt, m.qrImage, m.pairingCode = "", false, ""
	}
}

func closeStatus(u common.ConnectionUpdate) string {
	status := "Disconnected"
	if d := u.LastDisconnect; d != nil {
		status += fmt.Sprintf(": %s", d.Reason)
	}
	if u.ShouldReconnect != nil {
		if *u.ShouldReconnect {
			status += ", reconnecting..."
		} else {
			status += ". Run wa-desktop --reset and link again"
		}
	}
	return status
}

// renderQR draws payload with half-block characters. An unrenderable
// payload yields no art; the status line still tells the user to scan.
func renderQR(payload string) string {
	code, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return ""
	}
	return code.ToSmallString(false)
}

func (m *Model) layout() {
	// Header, status, form, help and borders take about twelve rows.
	m.history.Width = max(m.width-4, 10)
	m.history.Height = max(m.height-12, 3)
	m.phone.Width = max(m.width-10, 10)
	m.text.Width = max(m.width-10, 10)
	m.refreshHistory()
}

func (m *Model) refreshHistory() {
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, m.formatMessage(msg))
	}
	m.history.SetContent(strings.Join(lines, "\n"))
	m.history.GotoBottom()
}

func (m Model) formatMessage(msg common.InboundMessage) string {
	from := common.FormatPhoneNumber(msg.Sender)
	if msg.PushName != "" {
		from = msg.PushName
	}
	ts := ""
	if !msg.Timestamp.IsZero() {
		ts = m.theme.timestamp.Render(msg.Timestamp.Local().Format(time.Kitchen)) + " "
	}
	return ts + m.theme.sender.Render(from) + ": " + msg.Text
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.header.Render(common.AppName))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if !m.Connected() && !m.shellGone {
		b.WriteString(m.pairingPanel())
	} else {
		b.WriteString(m.theme.panel.Render(
			m.theme.panelTitle.Render("Messages") + "\n" + m.messagesView()))
		b.WriteString("\n")
		b.WriteString(m.phone.View())
		b.WriteString("\n")
		b.WriteString(m.text.View())
	}
	b.WriteString("\n")

	if m.feedback != "" {
		b.WriteString(m.feedback)
		b.WriteString("\n")
	}
	b.WriteString(m.theme.help.Render("tab switch field • enter send • pgup/pgdn scroll • esc quit"))
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.statusErr:
		return m.theme.statusError.Render(m.status)
	case m.Connected():
		return m.theme.statusOK.Render("● " + m.status)
	default:
		return m.spinner.View() + " " + m.theme.statusWait.Render(m.status)
	}
}

func (m Model) pairingPanel() string {
	var parts []string
	if m.pairingCode != "" {
		parts = append(parts, "Pairing code:", m.theme.code.Render(m.pairingCode))
	}
	switch {
	case m.qrArt != "":
		parts = append(parts, m.qrArt)
	case m.qrImage:
		parts = append(parts, "QR code received, waiting for terminal rendering...")
	}
	if len(parts) == 0 {
		return m.theme.help.Render("Waiting for the connection...")
	}
	return m.theme.panel.Render(m.theme.panelTitle.Render("Link a device") + "\n" + strings.Join(parts, "\n"))
}

func (m Model) messagesView() string {
	if len(m.messages) == 0 {
		return m.theme.help.Render("No messages yet.")
	}
	if m.history.Height == 0 {
		// No size yet; render everything.
		lines := make([]string, 0, len(m.messages))
		for _, msg := range m.messages {
			lines = append(lines, m.formatMessage(msg))
		}
		return strings.Join(lines, "\n")
	}
	return m.history.View()
}
