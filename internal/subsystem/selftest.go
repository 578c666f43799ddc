package subsystem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/internal/transport"
	"github.com/skytrace/copilot/pkg/logger"
)

// stagedDef is the one-field definition staged for scenarios that have one.
const stagedDef = `{ "name": "Counter", "unit": "N", "lowValue": 0, "highValue": 100, "stepSize": 1 }`

// ErrNoReport is returned when a virtual window never finishes.
var ErrNoReport = errors.New("window did not finish")

// gpsTestStepLimit bounds the virtual-time run of GpsTest.
const gpsTestStepLimit = 1000

// storeStager writes scenario slots into a real store.
type storeStager struct {
	store *slotstore.Store
}

func (s storeStager) StageSlot(slot string, hasDefinition, usesGps, usesMsg bool) error {
	def := ""
	if hasDefinition {
		def = stagedDef
	}
	if err := s.store.SetMsgDef(slot, def); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "print(\"staged %s\");\n", slot)
	if usesGps {
		b.WriteString("var hour = gps.GetTimeHour();\n")
	}
	if usesMsg {
		call := "msg.SetCounterN(1);"
		if !hasDefinition {
			// referenced but never reached, there is no setter to call
			call = "if (false) { msg.SetCounterN(1); }"
		}
		b.WriteString(call + "\n")
	}
	return s.store.SetScript(slot, b.String())
}

// SelfTest runs the schedule scenarios against the real store and engine.
// The slot files are moved aside for the run and put back afterwards.
func SelfTest(store *slotstore.Store, engine *jsengine.Engine, l logger.Logger) (results []copilot.Result, err error) {
	if err := store.Backup(); err != nil {
		return nil, fmt.Errorf("backup slots: %w", err)
	}
	defer func() {
		if rerr := store.Restore(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore slots: %w", rerr))
		}
	}()
	return copilot.RunScheduleSuite(copilot.ScenarioDeps{
		Stager: storeStager{store: store},
		Engine: engine,
		Defs:   store,
		Logger: l,
	}), nil
}

// reportCatcher keeps the first window report.
type reportCatcher struct {
	report *copilot.Report
}

func (c *reportCatcher) OnMark(string, timeline.Entry) {}

func (c *reportCatcher) OnWindowReport(r copilot.Report) {
	if c.report == nil {
		c.report = &r
	}
}

// GpsTest delivers the crafted self-test lock with start minute 0 and runs
// one compressed window on virtual time with the slots as stored. Telemetry
// goes to the log.
func GpsTest(store *slotstore.Store, engine *jsengine.Engine, l logger.Logger) (copilot.Report, error) {
	fix, err := gps.ParseDateTime(copilot.SelfTestFix, gps.Quality3DPlus)
	if err != nil {
		return copilot.Report{}, err
	}

	cfg := copilot.DefaultConfig()
	cfg.StartMinute = 0
	cfg.Compressed = true

	clock := systime.NewFake(1_000_000)
	queue := scheduler.NewQueue()
	catcher := &reportCatcher{}
	var cp *copilot.Copilot
	uplink := transport.New(transport.LogPublisher{L: l}, transport.DefaultTopic, engine, func() (gps.Fix, bool) {
		return cp.LastFix()
	})
	cp = copilot.New(cfg, copilot.Deps{
		Transport: uplink,
		Engine:    engine,
		Defs:      store,
		Time:      clock,
		Queue:     queue,
		Logger:    l,
		Observer:  catcher,
	})

	cp.OnGpsLock(fix)
	for i := 0; catcher.report == nil && i < gpsTestStepLimit; i++ {
		next, ok := queue.Next()
		if !ok {
			break
		}
		scheduler.RunUntil(queue, clock, next)
	}
	if catcher.report == nil {
		return copilot.Report{}, ErrNoReport
	}
	return *catcher.report, nil
}
