package session

import (
	"encoding/base64"
	"image/color"

	"github.com/skip2/go-qrcode"

	"github.com/yllada/wa-desktop/common"
)

// QRRenderer turns a QR payload into a displayable form.
type QRRenderer interface {
	Render(payload string) (string, error)
}

// RendererFunc adapts a function to the QRRenderer interface.
type RendererFunc func(payload string) (string, error)

// Render calls f(payload).
func (f RendererFunc) Render(payload string) (string, error) {
	return f(payload)
}

// DataURLRenderer renders QR payloads as PNG data URLs.
type DataURLRenderer struct {
	// Size is the image edge length in pixels.
	Size int
}

const dataURLPrefix = "data:image/png;base64,"

// Render encodes payload as a black on white PNG data URL.
func (r DataURLRenderer) Render(payload string) (string, error) {
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}
	code.ForegroundColor = color.Black
	code.BackgroundColor = color.White

	size := r.Size
	if size <= 0 {
		size = common.DefaultQRSize
	}
	png, err := code.PNG(size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
