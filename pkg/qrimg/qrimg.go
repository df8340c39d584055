package qrimg

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DataURL renderiza o desafio de pareamento como PNG e devolve um data URL
// pronto para ser exibido pelo dashboard ou por observadores do canal realtime.
func DataURL(challenge string) (string, error) {
	png, err := qrcode.Encode(challenge, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("falha ao gerar QR code PNG: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
