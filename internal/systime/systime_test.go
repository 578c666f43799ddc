package systime

import (
	"testing"
	"time"

	"github.com/skytrace/copilot/internal/gps"
)

func TestFake_SetFromGps(t *testing.T) {
	f := NewFake(5_000_000)
	fix, _ := gps.ParseDateTime("2025-01-01 12:09:50.000", gps.Quality3DPlus)

	if off := f.SetFromGps(fix); off != 0 {
		t.Errorf("first alignment offset = %d, want 0", off)
	}
	if got := f.SystemUsAtLastTimeChange(); got != 5_000_000 {
		t.Errorf("last change = %d", got)
	}
	if got := f.NotionalAt(15_000_000); got != "2025-01-01 12:10:00.000" {
		t.Errorf("notional = %s", got)
	}

	// the clock now runs 250 ms slow relative to the next fix
	f.Advance(10 * time.Second)
	next, _ := gps.ParseDateTime("2025-01-01 12:10:00.250", gps.Quality3DPlus)
	if off := f.SetFromGps(next); off != 250_000 {
		t.Errorf("offset = %d, want 250000", off)
	}
}

func TestFake_SetNeverGoesBackwards(t *testing.T) {
	f := NewFake(100)
	f.Set(50)
	if f.NowUs() != 100 {
		t.Errorf("now = %d", f.NowUs())
	}
	f.Set(200)
	if f.NowUs() != 200 {
		t.Errorf("now = %d", f.NowUs())
	}
}

func TestMonotonic_Advances(t *testing.T) {
	m := NewMonotonic()
	a := m.NowUs()
	time.Sleep(2 * time.Millisecond)
	if b := m.NowUs(); b <= a {
		t.Errorf("clock did not advance: %d -> %d", a, b)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[uint64]string{
		0:             "00:00:00.000",
		1_500_000:     "00:00:01.500",
		600_000_000:   "00:10:00.000",
		3_661_001_000: "01:01:01.001",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %s, want %s", in, got, want)
		}
	}
}
