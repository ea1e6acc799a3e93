// Package format turns cell and stat values into display text according to a
// column or stat format. Output never depends on the host's ambient locale.
package format

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"loom/internal/toolui/schema"
)

// Placeholder is shown for null and empty values regardless of format.
const Placeholder = "—"

// DefaultLocale is used when a payload carries no locale.
const DefaultLocale = "en-US"

// DefaultMaxVisible caps array chips when the format does not say.
const DefaultMaxVisible = 3

// ErrUnexpectedValue reports a value the format cannot render.
var ErrUnexpectedValue = errors.New("unexpected value for format")

// Arrow is the direction marker of a delta.
type Arrow int8

const (
	ArrowNone Arrow = iota
	ArrowUp
	ArrowDown
)

func (a Arrow) Glyph() string {
	switch a {
	case ArrowUp:
		return "▲"
	case ArrowDown:
		return "▼"
	default:
		return ""
	}
}

// Rendered is the presentation of one value.
type Rendered struct {
	Text        string
	Spoken      string
	Title       string
	Tone        schema.Tone
	Arrow       Arrow
	Href        string
	External    bool
	Inert       bool
	Chips       []string
	Overflow    []string
	Placeholder bool
	Numeric     bool
}

// Label is the accessible text: the spoken form when one exists.
func (r Rendered) Label() string {
	if r.Spoken != "" {
		return r.Spoken
	}
	return r.Text
}

func (r Rendered) sanitized() Rendered {
	r.Text = Sanitize(r.Text)
	r.Spoken = Sanitize(r.Spoken)
	r.Title = Sanitize(r.Title)
	r.Chips = sanitizeAll(r.Chips)
	r.Overflow = sanitizeAll(r.Overflow)
	return r
}

// Sanitize strips escape sequences and control characters from payload
// text. Newlines and tabs survive.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(s))
}

func sanitizeAll(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = Sanitize(s)
	}
	return out
}

// Formatter renders values for one locale.
type Formatter struct {
	tag        language.Tag
	printer    *message.Printer
	now        func() time.Time
	location   *time.Location
	maxVisible int
}

type Option func(*Formatter)

// WithClock fixes "now" for relative dates.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLocation sets the zone absolute dates are shown in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		if loc != nil {
			f.location = loc
		}
	}
}

// WithMaxVisible overrides DefaultMaxVisible.
func WithMaxVisible(n int) Option {
	return func(f *Formatter) {
		if n >= 0 {
			f.maxVisible = n
		}
	}
}

// New builds a Formatter. An empty or malformed locale falls back to DefaultLocale.
func New(locale string, opts ...Option) *Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || locale == "" {
		tag = language.MustParse(DefaultLocale)
	}
	f := &Formatter{
		tag:        tag,
		printer:    message.NewPrinter(tag),
		now:        time.Now,
		location:   time.UTC,
		maxVisible: DefaultMaxVisible,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Formatter) Locale() language.Tag { return f.tag }

// RenderValue is a one-shot Render with a fresh Formatter.
func RenderValue(v schema.Value, format *schema.Format, row schema.Row, locale string) (Rendered, error) {
	return New(locale).Render(v, format, row)
}

// Render formats v. row supplies sibling fields for link hrefKey lookups.
// The result carries no escape sequences or control characters.
func (f *Formatter) Render(v schema.Value, format *schema.Format, row schema.Row) (Rendered, error) {
	r, err := f.render(v, format, row)
	if err != nil {
		return Rendered{}, err
	}
	return r.sanitized(), nil
}

func (f *Formatter) render(v schema.Value, format *schema.Format, row schema.Row) (Rendered, error) {
	if v.IsEmpty() {
		return placeholder(), nil
	}

	switch spec := format.SpecOrText().(type) {
	case schema.TextFormat:
		return Rendered{Text: v.String()}, nil
	case schema.NumberFormat:
		x, err := numeric(v)
		if err != nil {
			return Rendered{}, err
		}
		return f.Number(x, spec), nil
	case schema.CurrencyFormat:
		x, err := numeric(v)
		if err != nil {
			return Rendered{}, err
		}
		return f.Currency(x, spec), nil
	case schema.PercentFormat:
		x, err := numeric(v)
		if err != nil {
			return Rendered{}, err
		}
		return f.Percent(x, spec), nil
	case schema.DeltaFormat:
		x, err := numeric(v)
		if err != nil {
			return Rendered{}, err
		}
		return f.Delta(x, spec), nil
	case schema.DateFormat:
		return f.Date(v, spec.Style)
	case schema.StatusFormat:
		return toneLookup(v, spec.StatusMap), nil
	case schema.BadgeFormat:
		return toneLookup(v, spec.ColorMap), nil
	case schema.BooleanFormat:
		return booleanLabel(v, spec)
	case schema.LinkFormat:
		return link(v, spec, row), nil
	case schema.ArrayFormat:
		return f.Array(v, spec), nil
	default:
		return Rendered{}, fmt.Errorf("%w: unsupported format %T", ErrUnexpectedValue, spec)
	}
}

func placeholder() Rendered {
	return Rendered{Text: Placeholder, Spoken: "empty", Placeholder: true, Tone: schema.ToneNeutral}
}

// numeric accepts numbers and numeric-looking strings.
func numeric(v schema.Value) (float64, error) {
	if n, ok := v.Num(); ok {
		return n, nil
	}
	if s, ok := v.Str(); ok {
		if n, ok := ParseNumericLike(s); ok {
			return n, nil
		}
		return 0, fmt.Errorf("%w: %q is not numeric", ErrUnexpectedValue, s)
	}
	return 0, fmt.Errorf("%w: %s where a number was expected", ErrUnexpectedValue, v.Kind())
}

func toneLookup(v schema.Value, table map[string]schema.ToneLabel) Rendered {
	raw := v.String()
	entry, ok := table[raw]
	if !ok {
		return Rendered{Text: raw, Tone: schema.ToneNeutral}
	}
	label := entry.Label
	if label == "" {
		label = raw
	}
	tone := entry.Tone
	if tone == "" {
		tone = schema.ToneNeutral
	}
	return Rendered{Text: label, Tone: tone}
}

func booleanLabel(v schema.Value, spec schema.BooleanFormat) (Rendered, error) {
	labels := schema.BooleanLabels{True: "Yes", False: "No"}
	if spec.Labels != nil {
		labels = *spec.Labels
	}

	b, ok := v.Boolean()
	if !ok {
		s, isStr := v.Str()
		switch {
		case isStr && strings.EqualFold(s, "true"):
			b = true
		case isStr && strings.EqualFold(s, "false"):
			b = false
		default:
			return Rendered{}, fmt.Errorf("%w: %s where a boolean was expected", ErrUnexpectedValue, v.Kind())
		}
	}
	if b {
		return Rendered{Text: labels.True}, nil
	}
	return Rendered{Text: labels.False}, nil
}

// SafeHref reports whether href is an absolute http or https URL free of
// control characters.
func SafeHref(href string) bool {
	if strings.IndexFunc(href, unicode.IsControl) >= 0 {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func link(v schema.Value, spec schema.LinkFormat, row schema.Row) Rendered {
	text := v.String()
	href := text
	if spec.HrefKey != "" {
		href = row.Get(spec.HrefKey).String()
	}
	if !SafeHref(href) {
		return Rendered{Text: text, Inert: true}
	}
	out := Rendered{Text: text, Href: strings.TrimSpace(href), External: spec.External}
	if spec.External {
		out.Spoken = text + " (opens in new tab)"
	}
	return out
}

// Array renders up to maxVisible chips and keeps the rest as overflow.
func (f *Formatter) Array(v schema.Value, spec schema.ArrayFormat) Rendered {
	items := v.Items()
	if v.Kind() != schema.ValueArray {
		items = []schema.Value{v}
	}
	if len(items) == 0 {
		return placeholder()
	}

	limit := f.maxVisible
	if spec.MaxVisible != nil {
		limit = *spec.MaxVisible
	}
	limit = min(limit, len(items))

	all := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsEmpty() {
			all = append(all, Placeholder)
			continue
		}
		all = append(all, item.String())
	}

	out := Rendered{
		Chips:    all[:limit],
		Overflow: all[limit:],
		Title:    strings.Join(all, ", "),
	}
	text := strings.Join(out.Chips, ", ")
	if n := len(out.Overflow); n > 0 {
		more := fmt.Sprintf("+%d", n)
		if text != "" {
			text += " "
		}
		text += more
		out.Spoken = fmt.Sprintf("%s and %d more", strings.Join(out.Chips, ", "), n)
		if limit == 0 {
			out.Spoken = fmt.Sprintf("%d items", n)
		}
	}
	out.Text = text
	return out
}
