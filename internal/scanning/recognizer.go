package scanning

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrDecode is returned when the input bytes are not a decodable raster image
	ErrDecode = errors.New("image could not be decoded")

	// ErrRecognitionUnavailable is returned when the recognition backend fails
	ErrRecognitionUnavailable = errors.New("text recognition unavailable")
)

// DateAlphabet is the restricted character set used when only dates are expected
const DateAlphabet = "0123456789./-"

// Text is the output of a recognizer for one image, one entry per recognized line
type Text struct {
	Lines []string
}

// String joins the recognized lines with single spaces
func (t Text) String() string {
	return strings.Join(t.Lines, " ")
}

// Empty reports whether the recognizer found no text at all
func (t Text) Empty() bool {
	return strings.TrimSpace(t.String()) == ""
}

// Hints tune a recognizer for the expected content
type Hints struct {
	// DigitsOnly restricts recognition to DateAlphabet
	DigitsOnly bool
	// Languages are backend-specific language codes (e.g. "eng", "rus")
	Languages []string
}

// Recognizer converts a prepared image into text lines.
// Implementations wrap every failure in ErrRecognitionUnavailable and return
// an empty Text, not an error, when nothing was detected.
type Recognizer interface {
	Recognize(ctx context.Context, img *PreparedImage, hints Hints) (Text, error)
	// Close releases backend resources
	Close() error
}

// NewText builds a Text from raw output, dropping blank lines
func NewText(raw string) Text {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return Text{Lines: lines}
}
