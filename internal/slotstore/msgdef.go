package slotstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

const (
	// MaxFields is the most fields a message definition may hold.
	MaxFields = 29
	// MaxBits is the payload capacity shared by all fields.
	MaxBits = 29.178
)

var (
	ErrMissingKeys   = errors.New("field definition missing keys")
	ErrTooManyFields = errors.New("too many fields")
	ErrBadField      = errors.New("invalid field")
	ErrTooLarge      = errors.New("fields exceed message capacity")
	ErrUnknownField  = errors.New("unknown field")
)

// FieldDef is one user-defined message field.
type FieldDef struct {
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	LowValue  float64 `json:"lowValue"`
	HighValue float64 `json:"highValue"`
	StepSize  float64 `json:"stepSize"`
}

// FieldName is the name scripts use, e.g. "AltitudeMeters".
func (f FieldDef) FieldName() string {
	return f.Name + f.Unit
}

// NumValues is how many distinct values the field can encode.
func (f FieldDef) NumValues() float64 {
	return math.Round((f.HighValue-f.LowValue)/f.StepSize) + 1
}

// Bits is the payload the field consumes.
func (f FieldDef) Bits() float64 {
	return math.Log2(f.NumValues())
}

func (f FieldDef) validate() error {
	name := f.FieldName()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrBadField)
	}
	for i, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') || (i == 0 && unicode.IsDigit(r)) {
			return fmt.Errorf("%w: %s: name must be an identifier", ErrBadField, name)
		}
	}
	if f.StepSize <= 0 {
		return fmt.Errorf("%w: %s: stepSize must be positive", ErrBadField, name)
	}
	if f.LowValue >= f.HighValue {
		return fmt.Errorf("%w: %s: lowValue must be below highValue", ErrBadField, name)
	}
	steps := (f.HighValue - f.LowValue) / f.StepSize
	if math.Abs(steps-math.Round(steps)) > 1e-6 {
		return fmt.Errorf("%w: %s: range is not a whole number of steps", ErrBadField, name)
	}
	return nil
}

// MsgDef is a parsed message definition.
type MsgDef struct {
	Fields []FieldDef `json:"fields"`
}

// Bits is the total payload of all fields.
func (d MsgDef) Bits() float64 {
	total := 0.0
	for _, f := range d.Fields {
		total += f.Bits()
	}
	return total
}

// Field looks up a field by its script name.
func (d MsgDef) Field(fieldName string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.FieldName() == fieldName {
			return f, true
		}
	}
	return FieldDef{}, false
}

type rawField struct {
	Name      *string  `json:"name"`
	Unit      *string  `json:"unit"`
	LowValue  *float64 `json:"lowValue"`
	HighValue *float64 `json:"highValue"`
	StepSize  *float64 `json:"stepSize"`
}

// ParseMsgDef parses the stored form: one JSON object per line, lines
// starting with // ignored, trailing commas optional.
func ParseMsgDef(src string) (MsgDef, error) {
	var def MsgDef
	body := sanitize(src)
	if body == "" {
		return def, nil
	}

	var raws []rawField
	if err := json.Unmarshal([]byte("[\n"+body+"\n]"), &raws); err != nil {
		return def, fmt.Errorf("parse message definition: %w", err)
	}
	if len(raws) > MaxFields {
		return def, fmt.Errorf("%w: %d > %d", ErrTooManyFields, len(raws), MaxFields)
	}

	var errs []error
	seen := make(map[string]bool)
	for i, r := range raws {
		if r.Name == nil || r.Unit == nil || r.LowValue == nil || r.HighValue == nil || r.StepSize == nil {
			errs = append(errs, fmt.Errorf("field %d: %w", i+1, ErrMissingKeys))
			continue
		}
		f := FieldDef{
			Name:      *r.Name,
			Unit:      *r.Unit,
			LowValue:  *r.LowValue,
			HighValue: *r.HighValue,
			StepSize:  *r.StepSize,
		}
		if err := f.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[f.FieldName()] {
			errs = append(errs, fmt.Errorf("%w: %s: duplicate name", ErrBadField, f.FieldName()))
			continue
		}
		seen[f.FieldName()] = true
		def.Fields = append(def.Fields, f)
	}
	if err := errors.Join(errs...); err != nil {
		return MsgDef{}, err
	}
	if bits := def.Bits(); bits > MaxBits {
		return MsgDef{}, fmt.Errorf("%w: %.2f bits > %.2f", ErrTooLarge, bits, MaxBits)
	}
	return def, nil
}

func sanitize(src string) string {
	var lines []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		lines = append(lines, strings.TrimRight(strings.TrimSuffix(line, ","), " \t"))
	}
	return strings.Join(lines, ",\n")
}

// Message holds field values set by a slot script.
type Message struct {
	def    MsgDef
	values map[string]float64
}

// NewMessage creates a message with every field at its low value.
func NewMessage(def MsgDef) *Message {
	m := &Message{def: def, values: make(map[string]float64, len(def.Fields))}
	for _, f := range def.Fields {
		m.values[f.FieldName()] = f.LowValue
	}
	return m
}

// Def returns the message's definition.
func (m *Message) Def() MsgDef { return m.def }

// Set stores v for field, clamped to the field's range.
func (m *Message) Set(field string, v float64) error {
	f, ok := m.def.Field(field)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	m.values[field] = math.Min(math.Max(v, f.LowValue), f.HighValue)
	return nil
}

// Get returns the value last set for field.
func (m *Message) Get(field string) (float64, bool) {
	v, ok := m.values[field]
	return v, ok
}

// Decoded returns what field's value becomes after encoding: the value
// snapped down to the field's step grid.
func (m *Message) Decoded(field string) float64 {
	f, ok := m.def.Field(field)
	if !ok {
		return 0
	}
	idx := math.Floor((m.values[field]-f.LowValue)/f.StepSize + 1e-9)
	return f.LowValue + idx*f.StepSize
}

// Values returns the decoded value of every field.
func (m *Message) Values() map[string]float64 {
	out := make(map[string]float64, len(m.def.Fields))
	for _, f := range m.def.Fields {
		out[f.FieldName()] = m.Decoded(f.FieldName())
	}
	return out
}

// State renders one aligned line per field:
//
//	msg.GetAltitudeMeters() == 1234 (decodes as 1200)
func (m *Message) State() string {
	width := 0
	for _, f := range m.def.Fields {
		width = max(width, len(f.FieldName())+len("msg.Get()"))
	}
	lines := make([]string, 0, len(m.def.Fields))
	lineWidth := 0
	for _, f := range m.def.Fields {
		line := fmt.Sprintf("%-*s == %s", width, "msg.Get"+f.FieldName()+"()", formatValue(m.values[f.FieldName()]))
		lineWidth = max(lineWidth, len(line))
		lines = append(lines, line)
	}
	for i, f := range m.def.Fields {
		lines[i] = fmt.Sprintf("%-*s (decodes as %s)", lineWidth, lines[i], formatValue(m.Decoded(f.FieldName())))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}
