package power

import (
	"testing"

	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

func TestGovernor_Switches(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, DefaultGovernorPath, []byte("ondemand\n"), 0o644)
	g := NewGovernor(fs, "", logger.NewNopLogger())

	g.GoHighSpeed()
	if cur, err := g.Current(); err != nil || cur != GovernorHigh {
		t.Fatalf("after GoHighSpeed: %q, %v", cur, err)
	}
	g.GoLowSpeed()
	if cur, _ := g.Current(); cur != GovernorLow {
		t.Errorf("after GoLowSpeed: %q", cur)
	}
}

func TestGovernor_MissingFileIsLogged(t *testing.T) {
	mock := logger.NewMockLogger()
	g := NewGovernor(afero.NewMemMapFs(), "/sys/none", mock)
	g.GoHighSpeed()
	if len(mock.WarningCalls) != 1 {
		t.Errorf("warnings = %v", mock.WarningCalls)
	}
	if _, err := g.Current(); err == nil {
		t.Error("expected read error")
	}
}
