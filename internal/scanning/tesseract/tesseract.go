package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
	"github.com/zombor/freshcheck/internal/scanning"
)

// client is the subset of *gosseract.Client used per recognition
type client interface {
	SetLanguage(langs ...string) error
	SetWhitelist(whitelist string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Tesseract implements scanning.Recognizer with a local Tesseract install
type Tesseract struct {
	languages     []string
	clientFactory func() client
}

// New creates a Tesseract recognizer; languages default to English and Russian
func New(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng", "rus"}
	}
	return &Tesseract{
		languages:     languages,
		clientFactory: func() client { return gosseract.NewClient() },
	}
}

var _ scanning.Recognizer = (*Tesseract)(nil)

type tesseractResult struct {
	text string
	err  error
}

// Recognize runs Tesseract on the prepared image. The cgo call cannot be
// interrupted, so a context deadline abandons it and returns early.
func (t *Tesseract) Recognize(ctx context.Context, img *scanning.PreparedImage, hints scanning.Hints) (scanning.Text, error) {
	done := make(chan tesseractResult, 1)
	go func() {
		text, err := t.run(img.PNG, hints)
		done <- tesseractResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return scanning.Text{}, fmt.Errorf("%w: %w", scanning.ErrRecognitionUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return scanning.Text{}, fmt.Errorf("%w: %w", scanning.ErrRecognitionUnavailable, res.err)
		}
		return scanning.NewText(res.text), nil
	}
}

func (t *Tesseract) run(png []byte, hints scanning.Hints) (string, error) {
	c := t.clientFactory()
	defer c.Close()

	languages := t.languages
	if len(hints.Languages) > 0 {
		languages = hints.Languages
	}
	if err := c.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if hints.DigitsOnly {
		if err := c.SetWhitelist(scanning.DateAlphabet); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := c.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are created per call
func (t *Tesseract) Close() error {
	return nil
}
