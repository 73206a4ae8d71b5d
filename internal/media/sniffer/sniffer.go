// Package sniffer checks uploaded avatar images by their magic bytes rather
// than by the client supplied content type.
package sniffer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxAvatarBytes caps avatar uploads at 2 MiB.
const MaxAvatarBytes = 2 << 20

var (
	ErrUnsupportedType = errors.New("only jpeg and png images are allowed")
	ErrTooLarge        = errors.New("image exceeds 2 MiB")
	ErrEmpty           = errors.New("empty file")
	ErrTypeMismatch    = errors.New("declared content type does not match file")
)

type Image struct {
	MIME string
	Data []byte
}

// ReadAvatar reads at most MaxAvatarBytes from r and validates the result.
// declared is the part's Content-Type header and may be empty.
func ReadAvatar(r io.Reader, declared string) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	if len(data) > MaxAvatarBytes {
		return Image{}, ErrTooLarge
	}

	mime, err := DetectHead(data)
	if err != nil {
		return Image{}, err
	}
	if declared = normalize(declared); declared != "" && declared != mime {
		return Image{}, ErrTypeMismatch
	}
	return Image{MIME: mime, Data: data}, nil
}

func DetectHead(head []byte) (string, error) {
	switch {
	case isJPEG(head):
		return "image/jpeg", nil
	case isPNG(head):
		return "image/png", nil
	}
	return "", ErrUnsupportedType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func MimeTypeFromHTTP(header http.Header) string {
	return normalize(header.Get("Content-Type"))
}

func normalize(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "image/jpg" || contentType == "image/pjpeg" {
		return "image/jpeg"
	}
	return contentType
}
