package qr

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 300

// RenderPNG encodes content into a QR code and returns it as a base64 data
// URI ready for an <img> tag. High error correction keeps badly printed or
// partially obscured codes scannable.
func RenderPNG(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.High, imageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
