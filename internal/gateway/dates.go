package gateway

import (
	"strings"
	"time"
)

// TimestampFormat reports which branch of ParseTimestamp produced a value.
type TimestampFormat int

const (
	FormatFallback TimestampFormat = iota
	FormatISO
	FormatSQL
	FormatLocale
	FormatEpoch
)

func (f TimestampFormat) String() string {
	switch f {
	case FormatISO:
		return "iso"
	case FormatSQL:
		return "sql"
	case FormatLocale:
		return "locale"
	case FormatEpoch:
		return "epoch"
	default:
		return "fallback"
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// SQL timestamps carry no zone; backends write them in UTC.
var sqlLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var localeLayouts = []string{
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	time.UnixDate,
	time.ANSIC,
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 2 15:04:05 MST 2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2 Jan 2006",
}

// now is replaced in tests.
var now = time.Now

// ParseTimestamp parses a server timestamp, trying ISO-8601 first, then the
// SQL layout, then textual locale layouts. When nothing matches it returns
// the current time and FormatFallback; it never fails.
func ParseTimestamp(s string) (time.Time, TimestampFormat) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now(), FormatFallback
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, FormatISO
		}
	}
	for _, layout := range sqlLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, FormatSQL
		}
	}
	for _, layout := range localeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, FormatLocale
		}
	}
	return now(), FormatFallback
}

// epochTime interprets a JSON number as Unix seconds or, when it is too
// large to be seconds, milliseconds.
func epochTime(n int64) time.Time {
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
