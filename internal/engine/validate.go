package engine

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/iecho-project/iecho/internal/agent"
)

const (
	// MaxQueryTokens bounds accepted query length, measured with the coarse
	// estimate below rather than a real tokenizer.
	MaxQueryTokens = 150

	// MaxImageBytes bounds the encoded image payload. Checked against the
	// base64 text, before decoding, so oversized uploads are rejected without
	// allocating the decoded copy.
	MaxImageBytes = 5 * 1024 * 1024
)

// Validation failure classes. Transports map these onto status codes and
// user-facing messages with errors.Is; the engine never formats wire text.
var (
	// ErrEmptyQuery rejects queries that are empty or whitespace-only.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong rejects queries over MaxQueryTokens.
	ErrQueryTooLong = errors.New("query exceeds token budget")

	// ErrImageTooLarge rejects image payloads over MaxImageBytes.
	ErrImageTooLarge = errors.New("image exceeds size limit")

	// ErrImageDecode rejects payloads that are not valid base64 or whose
	// decoded bytes are not a recognized image format.
	ErrImageDecode = errors.New("image decode failed")
)

// TokenEstimate approximates the token count of a query as one token per six
// bytes. Deliberately crude: the budget exists to cap request size, not to
// meter billing, and the same estimate must be reproducible by transports
// composing rejection messages.
func TokenEstimate(query string) int {
	return len(query) / 6
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if n := TokenEstimate(query); n > MaxQueryTokens {
		return fmt.Errorf("%w: %d tokens", ErrQueryTooLong, n)
	}
	return nil
}

// decodeImage turns an optional base64 payload into a typed image. An empty
// payload is simply no image.
func decodeImage(encoded string) (*agent.Image, error) {
	if encoded == "" {
		return nil, nil
	}
	if len(encoded) > MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes encoded", ErrImageTooLarge, len(encoded))
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	mediaType := sniffImageType(data)
	if mediaType == "" {
		return nil, fmt.Errorf("%w: unrecognized format", ErrImageDecode)
	}
	return &agent.Image{Data: data, MediaType: mediaType}, nil
}

// sniffImageType identifies PNG, JPEG, GIF, or WEBP by magic bytes. Returns
// "" for anything else.
func sniffImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return ""
}
