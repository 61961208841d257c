package dates

import (
	"regexp"
	"strconv"
	"time"
)

// Format identifies which pattern produced a candidate
type Format int

const (
	NumericDMY Format = iota
	NumericYMD
	MonthName
	CompactYYMMDD
	FreeText
)

func (f Format) String() string {
	switch f {
	case NumericDMY:
		return "NUMERIC_DMY"
	case NumericYMD:
		return "NUMERIC_YMD"
	case MonthName:
		return "MONTH_NAME"
	case CompactYYMMDD:
		return "COMPACT_YYMMDD"
	case FreeText:
		return "FREE_TEXT"
	}
	return "UNKNOWN"
}

// MarshalText renders the format name in JSON
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Tokens are delimited by non-digits rather than \b so letters stuck to a
// date by OCR ("exp16.07.2025r") do not hide it.
const (
	lead  = `(?:^|\D)`
	trail = `(?:\D|$)`
	sep   = `\s*[.\-/]\s*`
)

// pattern pairs a regular expression with the resolver for its groups
type pattern struct {
	format  Format
	re      *regexp.Regexp
	resolve func(e *Extractor, groups []string) (time.Time, bool)
}

// patterns is ordered most specific first; the first entry yielding a
// valid date wins regardless of where other matches sit in the text.
var patterns = []pattern{
	{
		format:  NumericDMY,
		re:      regexp.MustCompile(lead + `(\d{1,2})` + sep + `(\d{1,2})` + sep + `(\d{4}|\d{2})` + trail),
		resolve: resolveDMY,
	},
	{
		format:  NumericYMD,
		re:      regexp.MustCompile(lead + `(\d{4})` + sep + `(\d{1,2})` + sep + `(\d{1,2})` + trail),
		resolve: resolveYMD,
	},
	{
		format:  MonthName,
		re:      regexp.MustCompile(lead + `(\d{1,2})[\s.\-/]*(\p{L}{3,})\.?[\s.\-/]*(\d{4}|\d{2})` + trail),
		resolve: resolveMonthName,
	},
	{
		format:  CompactYYMMDD,
		re:      regexp.MustCompile(lead + `(\d{6})` + trail),
		resolve: resolveCompact,
	},
}

// monthPrefixes maps the first three letters of a month name to its number
var monthPrefixes = map[string]time.Month{
	"янв": time.January,
	"фев": time.February,
	"мар": time.March,
	"апр": time.April,
	"май": time.May,
	"мая": time.May,
	"июн": time.June,
	"июл": time.July,
	"авг": time.August,
	"сен": time.September,
	"окт": time.October,
	"ноя": time.November,
	"дек": time.December,
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

func lookupMonth(word string) (time.Month, bool) {
	runes := []rune(word)
	if len(runes) < 3 {
		return 0, false
	}
	m, ok := monthPrefixes[string(runes[:3])]
	return m, ok
}

// Years outside this range are OCR noise, not shelf-life dates
const (
	minYear = 1900
	maxYear = 2200
)

// civilDate builds a UTC midnight date, rejecting implausible years and
// values time.Date would normalize
func civilDate(year int, month time.Month, day int) (time.Time, bool) {
	if year < minYear || year > maxYear {
		return time.Time{}, false
	}
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// year resolves a 2 or 4 digit year string
func (e *Extractor) year(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		return e.expandYear(y)
	}
	return y
}

func resolveDMY(e *Extractor, g []string) (time.Time, bool) {
	day, _ := strconv.Atoi(g[0])
	month, _ := strconv.Atoi(g[1])
	return civilDate(e.year(g[2]), time.Month(month), day)
}

func resolveYMD(e *Extractor, g []string) (time.Time, bool) {
	year, _ := strconv.Atoi(g[0])
	month, _ := strconv.Atoi(g[1])
	day, _ := strconv.Atoi(g[2])
	return civilDate(year, time.Month(month), day)
}

func resolveMonthName(e *Extractor, g []string) (time.Time, bool) {
	month, ok := lookupMonth(g[1])
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(g[0])
	return civilDate(e.year(g[2]), month, day)
}

// resolveCompact reads a six digit run both as DDMMYY and YYMMDD and keeps
// the valid reading nearest to today, preferring day-first on a tie.
func resolveCompact(e *Extractor, g []string) (time.Time, bool) {
	s := g[0]
	a, _ := strconv.Atoi(s[0:2])
	b, _ := strconv.Atoi(s[2:4])
	c, _ := strconv.Atoi(s[4:6])

	dayFirst, dayFirstOK := civilDate(e.expandYear(c), time.Month(b), a)
	yearFirst, yearFirstOK := civilDate(e.expandYear(a), time.Month(b), c)

	switch {
	case dayFirstOK && yearFirstOK:
		today := e.clock.Today()
		if absDays(yearFirst, today) < absDays(dayFirst, today) {
			return yearFirst, true
		}
		return dayFirst, true
	case dayFirstOK:
		return dayFirst, true
	case yearFirstOK:
		return yearFirst, true
	}
	return time.Time{}, false
}

func absDays(a, b time.Time) int {
	d := DaysBetween(b, a)
	if d < 0 {
		return -d
	}
	return d
}
