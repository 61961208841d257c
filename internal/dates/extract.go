package dates

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// twoDigitPivot is how many years ahead a 20YY reading may lie before 19YY is used
const twoDigitPivot = 50

// Candidate is a date-shaped substring found in recognized text
type Candidate struct {
	Match    string    `json:"match"`
	Format   Format    `json:"format"`
	Date     time.Time `json:"date"`
	Resolved bool      `json:"resolved"`
}

// Extractor finds expiry dates in noisy OCR output
type Extractor struct {
	clock Clock
}

// NewExtractor creates an Extractor; clock anchors two-digit years
func NewExtractor(clock Clock) *Extractor {
	return &Extractor{clock: clock}
}

func (e *Extractor) expandYear(yy int) int {
	y := 2000 + yy
	if y > e.clock.Today().Year()+twoDigitPivot {
		return 1900 + yy
	}
	return y
}

// normalize lowercases and flattens text onto a single line
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.ToLower(text)
}

// Scan returns every structured candidate in precedence order: all matches
// of the first pattern in text order, then the second pattern, and so on.
func (e *Extractor) Scan(text string) []Candidate {
	s := normalize(text)
	var candidates []Candidate
	for _, p := range patterns {
		for pos := 0; pos < len(s); {
			loc := p.re.FindStringSubmatchIndex(s[pos:])
			if loc == nil {
				break
			}
			groups := make([]string, 0, len(loc)/2-1)
			for i := 2; i < len(loc); i += 2 {
				groups = append(groups, s[pos+loc[i]:pos+loc[i+1]])
			}
			start, end := pos+loc[2], pos+loc[len(loc)-1]

			date, ok := p.resolve(e, groups)
			candidates = append(candidates, Candidate{
				Match:    s[start:end],
				Format:   p.format,
				Date:     date,
				Resolved: ok,
			})
			// resume at the end of the token so a trailing delimiter can lead the next match
			pos = end
		}
	}
	return candidates
}

// Extract returns the best date in text, or nil when none can be resolved
func (e *Extractor) Extract(text string) *Candidate {
	for _, c := range e.Scan(text) {
		if c.Resolved {
			return &c
		}
	}
	return e.freeText(text)
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// freeText tries a lenient parse of the whole text and then of short word
// windows, for layouts like "October 7, 2026" that no pattern covers
func (e *Extractor) freeText(text string) *Candidate {
	if !hasDigit(text) {
		return nil
	}
	fields := strings.Fields(text)
	attempts := []string{strings.Join(fields, " ")}
	for size := 3; size >= 2; size-- {
		for i := 0; i+size <= len(fields); i++ {
			attempts = append(attempts, strings.Join(fields[i:i+size], " "))
		}
	}

	for _, attempt := range attempts {
		attempt = strings.Trim(attempt, ".,;:()")
		if !hasDigit(attempt) || !hasLetter(attempt) {
			continue
		}
		if t, ok := e.lenientParse(attempt); ok {
			return &Candidate{
				Match:    attempt,
				Format:   FreeText,
				Date:     time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
				Resolved: true,
			}
		}
	}
	return nil
}

func (e *Extractor) lenientParse(s string) (t time.Time, ok bool) {
	// dateparse can panic on malformed input
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	loc := e.clock.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil || t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return t, true
}
