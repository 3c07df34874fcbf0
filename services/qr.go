package services

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRDataURI renders url as a PNG QR code inlined in a data URI.
func QRDataURI(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
