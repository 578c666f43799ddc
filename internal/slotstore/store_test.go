package slotstore

import (
	"errors"
	"strings"
	"testing"

	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/flash", logger.NewNopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, fs
}

const altDef = `// altitude and temperature
{ "name": "Altitude", "unit": "Meters", "lowValue": 0, "highValue": 21340, "stepSize": 20 },
{ "name": "Temp", "unit": "C", "lowValue": -50, "highValue": 50, "stepSize": 1 },
`

func TestParseMsgDef(t *testing.T) {
	def, err := ParseMsgDef(altDef)
	if err != nil {
		t.Fatalf("ParseMsgDef: %v", err)
	}
	if len(def.Fields) != 2 {
		t.Fatalf("fields = %+v", def.Fields)
	}
	if def.Fields[0].FieldName() != "AltitudeMeters" || def.Fields[1].FieldName() != "TempC" {
		t.Errorf("names = %s %s", def.Fields[0].FieldName(), def.Fields[1].FieldName())
	}
	if _, ok := def.Field("TempC"); !ok {
		t.Error("Field lookup failed")
	}
}

func TestParseMsgDef_EmptyAndComments(t *testing.T) {
	for _, src := range []string{"", "\n\n", "// nothing here\n  // still nothing"} {
		def, err := ParseMsgDef(src)
		if err != nil || len(def.Fields) != 0 {
			t.Errorf("ParseMsgDef(%q) = %+v, %v", src, def, err)
		}
	}
}

func TestParseMsgDef_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"missing key", `{ "name": "A", "unit": "", "lowValue": 0, "highValue": 1 }`, ErrMissingKeys},
		{"zero step", `{ "name": "A", "unit": "", "lowValue": 0, "highValue": 1, "stepSize": 0 }`, ErrBadField},
		{"inverted range", `{ "name": "A", "unit": "", "lowValue": 5, "highValue": 1, "stepSize": 1 }`, ErrBadField},
		{"fractional steps", `{ "name": "A", "unit": "", "lowValue": 0, "highValue": 1, "stepSize": 0.3 }`, ErrBadField},
		{"bad name", `{ "name": "1st", "unit": "", "lowValue": 0, "highValue": 1, "stepSize": 1 }`, ErrBadField},
		{"duplicate", "{ \"name\": \"A\", \"unit\": \"\", \"lowValue\": 0, \"highValue\": 1, \"stepSize\": 1 }\n{ \"name\": \"A\", \"unit\": \"\", \"lowValue\": 0, \"highValue\": 1, \"stepSize\": 1 }", ErrBadField},
		{"too large", `{ "name": "A", "unit": "", "lowValue": 0, "highValue": 1000000000000, "stepSize": 1 }`, ErrTooLarge},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ParseMsgDef(c.src); !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
		})
	}

	if _, err := ParseMsgDef("{ not json"); err == nil {
		t.Error("expected a syntax error")
	}

	var b strings.Builder
	for i := 0; i < MaxFields+1; i++ {
		b.WriteString(`{ "name": "F`)
		b.WriteByte(byte('a' + i%26))
		b.WriteString(strings.Repeat("x", i/26))
		b.WriteString(`", "unit": "", "lowValue": 0, "highValue": 1, "stepSize": 1 },` + "\n")
	}
	if _, err := ParseMsgDef(b.String()); !errors.Is(err, ErrTooManyFields) {
		t.Errorf("expected ErrTooManyFields, got %v", err)
	}
}

func TestMessage_SetClampsAndDecodes(t *testing.T) {
	def, _ := ParseMsgDef(altDef)
	m := NewMessage(def)

	if v, _ := m.Get("TempC"); v != -50 {
		t.Errorf("initial value = %v, want low value", v)
	}
	if err := m.Set("AltitudeMeters", 1234); err != nil {
		t.Fatal(err)
	}
	if got := m.Decoded("AltitudeMeters"); got != 1220 {
		t.Errorf("decoded = %v, want 1220", got)
	}
	m.Set("TempC", 999)
	if v, _ := m.Get("TempC"); v != 50 {
		t.Errorf("clamped = %v, want 50", v)
	}
	if err := m.Set("Nope", 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if vals := m.Values(); vals["AltitudeMeters"] != 1220 || vals["TempC"] != 50 {
		t.Errorf("values = %v", vals)
	}

	state := m.State()
	if !strings.Contains(state, "msg.GetAltitudeMeters() == 1234") || !strings.Contains(state, "(decodes as 1220)") {
		t.Errorf("state =\n%s", state)
	}
}

func TestStore_GetSet(t *testing.T) {
	s, fs := newTestStore(t)

	if def, err := s.GetMsgDef("slot1"); err != nil || def != "" {
		t.Fatalf("missing def = %q, %v", def, err)
	}
	if err := s.SetMsgDef("slot1", altDef); err != nil {
		t.Fatalf("SetMsgDef: %v", err)
	}
	if got, _ := s.GetMsgDef("slot1"); got != altDef {
		t.Errorf("round trip mismatch: %q", got)
	}
	if ok, _ := afero.Exists(fs, "/flash/slot1.json"); !ok {
		t.Error("expected slot1.json on disk")
	}
	if !s.HasDefinition("slot1") || s.HasDefinition("slot2") {
		t.Error("HasDefinition mismatch")
	}

	if err := s.SetMsgDef("slot2", `{ "name": "A" }`); !errors.Is(err, ErrMissingKeys) {
		t.Errorf("invalid def accepted: %v", err)
	}
	if err := s.SetScript("slot6", "x"); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("expected ErrUnknownSlot, got %v", err)
	}

	if err := s.SetScript("slot3", "msg.SetTempC(1)"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetScript("slot3"); got != "msg.SetTempC(1)" {
		t.Errorf("script = %q", got)
	}
}

func TestStore_HasDefinitionWithOnlyComments(t *testing.T) {
	s, fs := newTestStore(t)
	afero.WriteFile(fs, "/flash/slot4.json", []byte("// empty\n"), 0o644)
	if s.HasDefinition("slot4") {
		t.Error("a definition without fields is no definition")
	}
	afero.WriteFile(fs, "/flash/slot5.json", []byte("{ broken"), 0o644)
	if s.HasDefinition("slot5") {
		t.Error("an unparseable definition is no definition")
	}
}

func TestStore_SeedDefaults(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetScript("slot2", "custom()")
	if err := s.SeedDefaults(); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetScript("slot1"); got != "print(\"I am slot1\");\n" {
		t.Errorf("slot1 = %q", got)
	}
	if got, _ := s.GetScript("slot2"); got != "custom()" {
		t.Errorf("existing script overwritten: %q", got)
	}
}

func TestStore_BackupRestore(t *testing.T) {
	s, fs := newTestStore(t)
	s.SetMsgDef("slot1", altDef)
	s.SetScript("slot1", "original()")

	if err := s.Backup(); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if got, _ := s.GetScript("slot1"); got != "" {
		t.Errorf("slot1 should be empty after backup, got %q", got)
	}
	s.SetScript("slot1", "staged()")
	s.SetScript("slot2", "staged()")

	if err := s.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got, _ := s.GetScript("slot1"); got != "original()" {
		t.Errorf("slot1 = %q", got)
	}
	if got, _ := s.GetScript("slot2"); got != "" {
		t.Errorf("staged slot2 should be gone, got %q", got)
	}
	if !s.HasDefinition("slot1") {
		t.Error("definition not restored")
	}
	if ok, _ := afero.Exists(fs, "/flash/slot1.js.bak"); ok {
		t.Error("backup file left behind")
	}
}

func TestStore_ReadModule(t *testing.T) {
	s, fs := newTestStore(t)
	afero.WriteFile(fs, "/flash/lib/util.js", []byte("exports.x = 1"), 0o644)

	b, err := s.ReadModule("./lib/util.js")
	if err != nil || string(b) != "exports.x = 1" {
		t.Fatalf("ReadModule = %q, %v", b, err)
	}
	if _, err := s.ReadModule("../etc/passwd"); !errors.Is(err, ErrBadPath) {
		t.Errorf("expected ErrBadPath, got %v", err)
	}
}
