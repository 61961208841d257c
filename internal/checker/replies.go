package checker

import (
	"errors"
	"fmt"
	"time"

	"github.com/zombor/freshcheck/internal/dates"
	"github.com/zombor/freshcheck/internal/scanning"
)

const reminderText = "Time for a freshness check: send a photo of the date on the package."

const helpText = `Send a photo of a printed or embossed date and I will compare it with today.
/start - subscribe to periodic reminders
/stop - unsubscribe
/status - show your subscription and last check`

const dateLayout = "2006-01-02"

// replyText converts a check outcome into the message shown to the user
func replyText(result *CheckResult, err error) string {
	switch {
	case err == nil:
		return freshnessText(*result.Freshness)
	case errors.Is(err, ErrNotSubscribed):
		return "Send /start to subscribe before checking photos."
	case errors.Is(err, scanning.ErrDecode):
		return "Could not read the image. Please resend a clearer photo."
	case errors.Is(err, scanning.ErrRecognitionUnavailable):
		return "Text recognition is unavailable right now. Please try again."
	case errors.Is(err, ErrNoTextFound):
		return "Could not recognize any text on the photo."
	case errors.Is(err, ErrNoDateFound):
		return fmt.Sprintf("Text: %s\nNo date found.", result.RecognizedText)
	}
	return "Something went wrong. Please try again."
}

func freshnessText(f dates.Freshness) string {
	day := f.Reference.Format(dateLayout)
	switch f.Status {
	case dates.Expired:
		return fmt.Sprintf("%s: expired %d days ago.", day, -f.DaysDelta)
	case dates.Today:
		return fmt.Sprintf("%s: that is today.", day)
	}
	return fmt.Sprintf("%s: %d days left.", day, f.DaysDelta)
}

// summarize produces the short result kept on the subscription
func summarize(result *CheckResult, err error) string {
	switch {
	case err == nil:
		f := result.Freshness
		return fmt.Sprintf("%s %s (%+d days)", f.Status, f.Reference.Format(dateLayout), f.DaysDelta)
	case errors.Is(err, scanning.ErrDecode):
		return "UNREADABLE_IMAGE"
	case errors.Is(err, scanning.ErrRecognitionUnavailable):
		return "RECOGNITION_UNAVAILABLE"
	case errors.Is(err, ErrNoTextFound):
		return "NO_TEXT_FOUND"
	case errors.Is(err, ErrNoDateFound):
		return "NO_DATE_FOUND"
	}
	return "ERROR"
}

// formatInterval renders durations like "2 hours" or "90 minutes"
func formatInterval(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
