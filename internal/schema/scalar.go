package schema

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/emmsync/internal/doc"
)

// Boolean is a true/false field.
type Boolean struct {
	typed[bool]
	scalar[bool]
	def bool
}

func NewBoolean(title, description string, def bool) *Boolean {
	n := &Boolean{def: def}
	n.typed = newTyped[bool](title, description, n)
	return n
}

func (n *Boolean) Kind() Kind { return KindBoolean }
func (n *Boolean) DefaultValue() bool { return n.def }
func (n *Boolean) Serialize(v bool) (doc.Value, error) { return doc.Bool(v), nil }
func (n *Boolean) Deserialize(v doc.Value) (bool, error) { return asBool(v) }
func (n *Boolean) HashValue(v bool) (uint64, error) { return hashBool(v), nil }
func (n *Boolean) FormatValue(v bool) string { return strconv.FormatBool(v) }

// Integer is a whole number field. By default values must not be negative.
type Integer struct {
	typed[int64]
	scalar[int64]
	def      int64
	min, max *int64
}

// IntegerOption configures an Integer.
type IntegerOption func(*Integer)

// WithMaximum sets an inclusive upper bound.
func WithMaximum(max int64) IntegerOption {
	return func(n *Integer) { n.max = &max }
}

// WithMinimum replaces the default lower bound of zero.
func WithMinimum(min int64) IntegerOption {
	return func(n *Integer) { n.min = &min }
}

// Unbounded removes the lower bound.
func Unbounded() IntegerOption {
	return func(n *Integer) { n.min = nil }
}

func NewInteger(title, description string, def int64, opts ...IntegerOption) *Integer {
	zero := int64(0)
	n := &Integer{def: def, min: &zero}
	for _, opt := range opts {
		opt(n)
	}
	n.typed = newTyped[int64](title, description, n)
	return n
}

func (n *Integer) Kind() Kind { return KindInteger }
func (n *Integer) DefaultValue() int64 { return n.def }

func (n *Integer) check(v int64) error {
	if n.min != nil && v < *n.min {
		if *n.min == 0 {
			return Errorf("Value must not be negative.")
		}
		return Errorf("Value must not be less than %d.", *n.min)
	}
	if n.max != nil && v > *n.max {
		return Errorf("Value must not exceed %d.", *n.max)
	}
	return nil
}

func (n *Integer) Serialize(v int64) (doc.Value, error) {
	if err := n.check(v); err != nil {
		return nil, err
	}
	return doc.Int(v), nil
}

// Deserialize leaves bounds to Serialize so a stored out-of-range value
// compares unequal instead of failing the comparison.
func (n *Integer) Deserialize(v doc.Value) (int64, error) { return asInt(v) }

func (n *Integer) HashValue(v int64) (uint64, error) { return hashInt(v), nil }
func (n *Integer) FormatValue(v int64) string { return strconv.FormatInt(v, 10) }

// Duration is encoded as decimal seconds with an "s" suffix, e.g. "3.5s".
type Duration struct {
	typed[time.Duration]
	scalar[time.Duration]
	def time.Duration
}

func NewDuration(title, description string, def time.Duration) *Duration {
	n := &Duration{def: def}
	n.typed = newTyped[time.Duration](title, description, n)
	return n
}

func (n *Duration) Kind() Kind { return KindDuration }
func (n *Duration) DefaultValue() time.Duration { return n.def }

func (n *Duration) Serialize(v time.Duration) (doc.Value, error) {
	if v < 0 {
		return nil, Errorf("Duration must not be negative.")
	}
	sec := v / time.Second
	frac := v % time.Second
	return doc.String(strconv.FormatInt(int64(sec), 10) + "." + leftPad(strconv.FormatInt(int64(frac), 10), 9) + "s"), nil
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func (n *Duration) Deserialize(v doc.Value) (time.Duration, error) {
	s, err := asString(v)
	if err != nil {
		return 0, err
	}
	num, ok := strings.CutSuffix(s, "s")
	if !ok {
		return 0, Errorf("Duration '%s' does not end in 's'.", s)
	}
	d, ok := parseSeconds(num)
	if !ok {
		return 0, Errorf("Duration '%s' is not a number.", s)
	}
	return d, nil
}

// parseSeconds accepts unsigned decimal numbers ("3", "3.", ".5", "3.25").
// Digits beyond nanosecond precision are truncated.
func parseSeconds(s string) (time.Duration, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, false
	}
	for _, part := range []string{whole, frac} {
		for i := 0; i < len(part); i++ {
			if part[i] < '0' || part[i] > '9' {
				return 0, false
			}
		}
	}
	var sec int64
	if whole != "" {
		var err error
		sec, err = strconv.ParseInt(whole, 10, 64)
		if err != nil || sec >= int64(time.Duration(1<<63-1)/time.Second) {
			return 0, false
		}
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nanos int64
	if frac != "" {
		nanos, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
	}
	return time.Duration(sec)*time.Second + time.Duration(nanos), true
}

func (n *Duration) HashValue(v time.Duration) (uint64, error) { return hashInt(int64(v)), nil }
func (n *Duration) FormatValue(v time.Duration) string { return v.String() }

var placeholder = regexp.MustCompile(`(?i)\$\{([a-z]+)\}`)

// String is a text field supporting ${name} placeholders.
type String struct {
	typed[string]
	scalar[string]
	def    string
	maxLen int
}

func NewString(title, description, def string) *String {
	n := &String{def: def}
	n.typed = newTyped[string](title, description, n)
	return n
}

// NewMessage returns a String limited to maxLen characters.
func NewMessage(title, description string, maxLen int) *String {
	n := NewString(title, description, "")
	n.maxLen = maxLen
	return n
}

func (n *String) Kind() Kind { return KindString }
func (n *String) DefaultValue() string { return n.def }

func (n *String) Serialize(v string) (doc.Value, error) {
	if n.maxLen > 0 && utf8.RuneCountInString(v) > n.maxLen {
		return nil, Errorf("The maximum message length is %d characters.", n.maxLen)
	}
	return doc.String(v), nil
}

func (n *String) Deserialize(v doc.Value) (string, error) { return asString(v) }
func (n *String) HashValue(v string) (uint64, error) { return hashString(v), nil }

// ExpandValue replaces every ${name} in a single pass. Substituted text is
// not scanned again.
func (n *String) ExpandValue(v string, lookup Lookup) (string, error) {
	return ExpandPlaceholders(v, lookup), nil
}

func (n *String) FormatValue(v string) string {
	return `"` + strings.ReplaceAll(v, `\`, `\\`) + `"`
}

// ExpandPlaceholders replaces ${name} occurrences in s using lookup.
// Names are matched case-insensitively and unknown names become "".
func ExpandPlaceholders(s string, lookup Lookup) string {
	if lookup == nil {
		lookup = NoLookup
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		val, _ := lookup(m[2 : len(m)-1])
		return val
	})
}

// Constant is a hidden field that only ever holds one literal.
// It is pinned: serialized objects always carry it.
type Constant struct {
	typed[string]
	literal string
}

func NewConstant(title, description, literal string) *Constant {
	n := &Constant{literal: literal}
	n.typed = newTyped[string](title, description, n)
	n.pin = true
	return n
}

func (n *Constant) Kind() Kind { return KindConstant }
func (n *Constant) DefaultValue() string { return n.literal }

func (n *Constant) ensure(v string) error {
	if v != n.literal {
		return Errorf("Value '%s' expected for %s, got '%s'.", n.literal, n.title, v)
	}
	return nil
}

func (n *Constant) Serialize(v string) (doc.Value, error) {
	if err := n.ensure(v); err != nil {
		return nil, err
	}
	return doc.String(v), nil
}

func (n *Constant) Deserialize(v doc.Value) (string, error) {
	s, err := asString(v)
	if err != nil {
		return "", err
	}
	return s, n.ensure(s)
}

func (n *Constant) EqualValues(a, b string) (bool, error) { return a == b, nil }
func (n *Constant) HashValue(v string) (uint64, error) { return hashString(v), nil }
func (n *Constant) MergeValues(_, _ string) (string, error) { return n.literal, nil }
func (n *Constant) ExpandValue(v string, _ Lookup) (string, error) { return v, nil }
func (n *Constant) FormatValue(v string) string { return v }
