// Package power switches processor speed through the cpufreq governor.
package power

import (
	"fmt"
	"os"
	"strings"

	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

// DefaultGovernorPath is cpu0's governor on a stock kernel.
const DefaultGovernorPath = "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"

const (
	GovernorHigh = "performance"
	GovernorLow  = "powersave"
)

// Governor writes the scaling governor. Write failures are logged, since a
// board without cpufreq still runs, only slower or hungrier.
type Governor struct {
	fs   afero.Fs
	path string
	l    logger.Logger
}

// NewGovernor returns a governor writing to path on fs. An empty path means
// DefaultGovernorPath.
func NewGovernor(fs afero.Fs, path string, l logger.Logger) *Governor {
	if path == "" {
		path = DefaultGovernorPath
	}
	return &Governor{fs: fs, path: path, l: l}
}

// GoHighSpeed selects the performance governor.
func (g *Governor) GoHighSpeed() { g.set(GovernorHigh) }

// GoLowSpeed selects the powersave governor.
func (g *Governor) GoLowSpeed() { g.set(GovernorLow) }

// Current reads the active governor.
func (g *Governor) Current() (string, error) {
	b, err := afero.ReadFile(g.fs, g.path)
	if err != nil {
		return "", fmt.Errorf("read governor: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (g *Governor) set(name string) {
	f, err := g.fs.OpenFile(g.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		g.l.Warning("power: open %s: %v", g.path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(name + "\n"); err != nil {
		g.l.Warning("power: set governor %s: %v", name, err)
	}
}
