package engine

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestTokenEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"short", 0},
		{strings.Repeat("a", 6), 1},
		{strings.Repeat("a", 900), 150},
		{strings.Repeat("a", 906), 151},
	}
	for _, tt := range tests {
		if got := TokenEstimate(tt.query); got != tt.want {
			t.Errorf("TokenEstimate(%d bytes) = %d, want %d", len(tt.query), got, tt.want)
		}
	}
}

func TestValidateQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{"valid", "What are the symptoms of TB?", nil},
		{"at the budget", strings.Repeat("a", MaxQueryTokens*6), nil},
		{"empty", "", ErrEmptyQuery},
		{"whitespace only", "   \n\t ", ErrEmptyQuery},
		{"over the budget", strings.Repeat("a", MaxQueryTokens*6+6), ErrQueryTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateQuery(tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateQuery() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// magic-prefixed payloads with enough trailing bytes to look like real files
func pngBytes() []byte  { return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...) }
func jpegBytes() []byte { return append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 32)...) }
func gifBytes() []byte  { return append([]byte("GIF89a"), make([]byte, 32)...) }
func webpBytes() []byte {
	b := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	return append(append(b, []byte("WEBP")...), make([]byte, 32)...)
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		wantType string
	}{
		{"png", pngBytes(), "image/png"},
		{"jpeg", jpegBytes(), "image/jpeg"},
		{"gif", gifBytes(), "image/gif"},
		{"webp", webpBytes(), "image/webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img, err := decodeImage(base64.StdEncoding.EncodeToString(tt.data))
			if err != nil {
				t.Fatalf("decodeImage() error = %v", err)
			}
			if img.MediaType != tt.wantType {
				t.Errorf("MediaType = %q, want %q", img.MediaType, tt.wantType)
			}
			if string(img.Data) != string(tt.data) {
				t.Error("decoded bytes do not round-trip")
			}
		})
	}
}

func TestDecodeImageAbsent(t *testing.T) {
	t.Parallel()

	img, err := decodeImage("")
	if err != nil {
		t.Fatalf("decodeImage(\"\") error = %v", err)
	}
	if img != nil {
		t.Errorf("decodeImage(\"\") = %+v, want nil", img)
	}
}

func TestDecodeImageRejectsOversized(t *testing.T) {
	t.Parallel()

	_, err := decodeImage(strings.Repeat("A", MaxImageBytes+1))
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("decodeImage() error = %v, want ErrImageTooLarge", err)
	}
}

func TestDecodeImageRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!definitely not base64!!!"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("plain text payload"))},
		{"truncated magic", base64.StdEncoding.EncodeToString([]byte("RIFF"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeImage(tt.encoded)
			if !errors.Is(err, ErrImageDecode) {
				t.Errorf("decodeImage() error = %v, want ErrImageDecode", err)
			}
		})
	}
}

func TestSniffImageType(t *testing.T) {
	t.Parallel()

	if got := sniffImageType([]byte("GIF87a")); got != "image/gif" {
		t.Errorf("sniffImageType(GIF87a) = %q, want image/gif", got)
	}
	// RIFF container that is not WEBP (e.g. WAV) must not pass.
	wav := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	wav = append(wav, []byte("WAVE")...)
	if got := sniffImageType(wav); got != "" {
		t.Errorf("sniffImageType(WAVE) = %q, want \"\"", got)
	}
}
