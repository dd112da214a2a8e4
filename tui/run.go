package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yllada/wa-desktop/bridge"
	"github.com/yllada/wa-desktop/common"
)

// Run shows the UI until the user quits or the shell goes away.
func Run(ctx context.Context, client *bridge.Client) error {
	p := tea.NewProgram(NewModel(client), tea.WithAltScreen(), tea.WithContext(ctx))

	client.OnQRCode(func(qr string) { p.Send(qrMsg(qr)) })
	client.OnConnectionUpdate(func(u common.ConnectionUpdate) { p.Send(updateMsg(u)) })
	client.OnMessage(func(m common.InboundMessage) { p.Send(inboundMsg(m)) })
	defer func() {
		client.RemoveAllListeners(common.ChannelQRCode)
		client.RemoveAllListeners(common.ChannelConnectionUpdate)
		client.RemoveAllListeners(common.ChannelNewMessage)
	}()

	go func() {
		select {
		case <-client.Done():
			p.Send(bridgeClosedMsg{})
		case <-ctx.Done():
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
