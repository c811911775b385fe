package expert

import (
	"encoding/base64"
	"errors"
	"testing"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00")
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00")
	webpBytes = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
)

func TestDecodeImage_Sniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngBytes, "image/png"},
		{"jpeg", jpegBytes, "image/jpeg"},
		{"gif", gifBytes, "image/gif"},
		{"webp", webpBytes, "image/webp"},
		{"unknown-defaults-png", []byte("just some bytes here"), "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeImage(base64.StdEncoding.EncodeToString(tt.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if img.MIMEType != tt.want {
				t.Errorf("mime: got %q, want %q", img.MIMEType, tt.want)
			}
			if string(img.Data) != string(tt.data) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestDecodeImage_DataURL(t *testing.T) {
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
	img, err := DecodeImage(url)
	if err != nil {
		t.Fatal(err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("mime: got %q", img.MIMEType)
	}
}

func TestDecodeImage_DataURLUnsupportedTypeIsSniffed(t *testing.T) {
	url := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(gifBytes)
	img, err := DecodeImage(url)
	if err != nil {
		t.Fatal(err)
	}
	if img.MIMEType != "image/gif" {
		t.Errorf("mime: got %q", img.MIMEType)
	}
}

func TestDecodeImage_Wrapped(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString(pngBytes)
	wrapped := enc[:8] + "\n" + enc[8:] + "\r\n"
	if _, err := DecodeImage(wrapped); err != nil {
		t.Fatalf("decode wrapped: %v", err)
	}
}

func TestDecodeImage_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "data:image/png;base64", "!!!not-base64!!!"} {
		if _, err := DecodeImage(in); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("%q: expected ErrInvalidImage, got %v", in, err)
		}
	}
}

func TestImageDigest(t *testing.T) {
	a := &Image{Data: []byte("abc")}
	if got := a.Digest(); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("digest: got %s", got)
	}
	var nilImg *Image
	if nilImg.Digest() != "" {
		t.Error("nil image digest should be empty")
	}
}
