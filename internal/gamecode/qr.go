package gamecode

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// JoinURI is the payload encoded in share QR codes.
func JoinURI(code string) string {
	return "mazeparty://join/" + code
}

// QRCode renders a PNG of size x size pixels for sharing code.
func QRCode(code string, size int) ([]byte, error) {
	if !ValidFormat(code) {
		return nil, ErrInvalidCode
	}
	png, err := qrcode.Encode(JoinURI(code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	return png, nil
}

func WriteQRFile(code string, size int, filename string) error {
	if !ValidFormat(code) {
		return ErrInvalidCode
	}
	if err := qrcode.WriteFile(JoinURI(code), qrcode.Medium, size, filename); err != nil {
		return fmt.Errorf("writing qr code: %w", err)
	}
	return nil
}
