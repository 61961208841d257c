package checker

import "errors"

var (
	// ErrNoTextFound means the recognizer succeeded but saw no text
	ErrNoTextFound = errors.New("no text found")

	// ErrNoDateFound means text was recognized but no valid date could be
	// resolved from it, including date-shaped tokens like 32.01.2025
	ErrNoDateFound = errors.New("no date found")

	// ErrNotSubscribed is returned for photo checks from unsubscribed
	// conversations when subscriptions are required
	ErrNotSubscribed = errors.New("conversation is not subscribed")
)
