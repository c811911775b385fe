package expert

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// #region image

// Image is a decoded patient photo.
type Image struct {
	Data     []byte
	MIMEType string
}

// ErrInvalidImage wraps every decoding failure.
var ErrInvalidImage = errors.New("invalid image")

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// DecodeImage accepts a data URL or raw base64. For raw input the type is
// sniffed from the leading bytes and defaults to image/png.
func DecodeImage(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImage)
	}

	declared := ""
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data url without payload", ErrInvalidImage)
		}
		declared, _, _ = strings.Cut(strings.TrimPrefix(header, "data:"), ";")
		s = payload
	}

	s = strings.NewReplacer("\n", "", "\r", "", " ", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	mime := declared
	if !supportedTypes[mime] {
		mime = sniff(data)
	}
	return &Image{Data: data, MIMEType: mime}, nil
}

func sniff(data []byte) string {
	mime := http.DetectContentType(data)
	if supportedTypes[mime] {
		return mime
	}
	return "image/png"
}

// Digest returns the hex SHA-256 of the image bytes.
func (img *Image) Digest() string {
	if img == nil {
		return ""
	}
	sum := sha256.Sum256(img.Data)
	return hex.EncodeToString(sum[:])
}

// #endregion
