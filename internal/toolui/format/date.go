package format

import (
	"fmt"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"

	"loom/internal/toolui/schema"
)

var inputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 string or a Unix millisecond number.
func ParseTime(v schema.Value) (time.Time, bool) {
	if n, ok := v.Num(); ok {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	s, ok := v.Str()
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type dateNames struct {
	short func(time.Time) string
	long  func(time.Time) string
	full  func(time.Time) string
}

var mondayLocales = func() map[string]monday.Locale {
	known := make(map[string]monday.Locale)
	for _, loc := range monday.ListLocales() {
		known[string(loc)] = loc
	}
	return known
}()

// monthLocale picks the month-name locale for tag: its own region first,
// then the language's most likely region, then English.
func monthLocale(tag language.Tag) monday.Locale {
	base, _ := tag.Base()
	region, _ := tag.Region()
	if loc, ok := mondayLocales[base.String()+"_"+region.String()]; ok {
		return loc
	}
	if likely, _ := language.Make(base.String()).Region(); likely.String() != "" {
		if loc, ok := mondayLocales[base.String()+"_"+likely.String()]; ok {
			return loc
		}
	}
	return monday.LocaleEnUS
}

func layoutFunc(layout string) func(time.Time) string {
	return func(t time.Time) string { return t.Format(layout) }
}

func localized(layout string, loc monday.Locale) func(time.Time) string {
	return func(t time.Time) string { return monday.Format(t, layout, loc) }
}

func isoFull(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") }

func (f *Formatter) dateNames() dateNames {
	base, _ := f.tag.Base()
	region, _ := f.tag.Region()
	loc := monthLocale(f.tag)
	switch base.String() {
	case "en":
		switch region.String() {
		case "US", "PH":
			return dateNames{
				short: layoutFunc("1/2/2006"),
				long:  layoutFunc("January 2, 2006"),
				full:  layoutFunc("Monday, January 2, 2006 at 3:04:05 PM MST"),
			}
		default:
			return dateNames{
				short: layoutFunc("02/01/2006"),
				long:  layoutFunc("2 January 2006"),
				full:  layoutFunc("Monday 2 January 2006 at 15:04:05 MST"),
			}
		}
	case "de":
		return dateNames{
			short: layoutFunc("2.1.2006"),
			long:  localized("2. January 2006", loc),
			full:  layoutFunc("02.01.2006, 15:04:05 MST"),
		}
	case "fr":
		return dateNames{
			short: layoutFunc("02/01/2006"),
			long:  localized("2 January 2006", loc),
			full:  layoutFunc("02/01/2006 15:04:05 MST"),
		}
	case "es", "pt":
		return dateNames{
			short: layoutFunc("2/1/2006"),
			long:  localized("2 de January de 2006", loc),
			full:  layoutFunc("2/1/2006, 15:04:05 MST"),
		}
	case "zh", "ja":
		return dateNames{
			short: layoutFunc("2006/1/2"),
			long:  layoutFunc("2006年1月2日"),
			full:  layoutFunc("2006/1/2 15:04:05 MST"),
		}
	default:
		return dateNames{
			short: layoutFunc("2006-01-02"),
			long:  localized("2 January 2006", loc),
			full:  isoFull,
		}
	}
}

// Date renders a timestamp. The full date and time is always attached as Title.
func (f *Formatter) Date(v schema.Value, style schema.DateStyle) (Rendered, error) {
	t, ok := ParseTime(v)
	if !ok {
		if _, isBool := v.Boolean(); isBool || v.Kind() == schema.ValueArray {
			return Rendered{}, fmt.Errorf("%w: %s where a date was expected", ErrUnexpectedValue, v.Kind())
		}
		return Rendered{Text: v.String()}, nil
	}
	t = t.In(f.location)
	names := f.dateNames()

	out := Rendered{Title: names.full(t)}
	switch style {
	case schema.DateLong:
		out.Text = names.long(t)
	case schema.DateRelative:
		out.Text = f.relative(t, names)
	default:
		out.Text = names.short(t)
	}
	return out, nil
}

func (f *Formatter) relative(t time.Time, names dateNames) string {
	d := f.now().Sub(t)
	switch {
	case d < 0:
		return names.short(t)
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return ago(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return ago(int(d/time.Hour), "hour")
	case d < 7*24*time.Hour:
		return ago(int(d/(24*time.Hour)), "day")
	default:
		return names.short(t)
	}
}

func ago(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
