package copilot

import (
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

// GPS requests fixes. Fixes come back through Copilot.OnGpsLock, which must
// be called on the loop goroutine.
type GPS interface {
	RequestNewLock()
}

// Radio controls the transmitter.
type Radio interface {
	IsActive() bool
	StartWarmup()
	Stop()
}

// Clock switches the processor between a fast mode for scripts and a low
// power mode for everything else.
type Clock interface {
	GoHighSpeed()
	GoLowSpeed()
}

// Transport sends telemetry. quitAfterMs bounds the transmission; zero means
// no cutoff beyond the transport's own.
type Transport interface {
	SendRegularTelemetry(quitAfterMs uint32) error
	SendBasicTelemetry(quitAfterMs uint32) error
	SendCustomMessage(slot string, quitAfterMs uint32) error
}

// ScriptEngine inspects and runs slot scripts.
type ScriptEngine interface {
	UsesGpsApi(slot string) bool
	UsesMessageApi(slot string) bool
	// Run executes the slot's script and reports whether it ran successfully.
	Run(slot string, fix gps.Fix) bool
}

// MessageDefs reports whether a slot has a stored message definition.
type MessageDefs interface {
	HasDefinition(slot string) bool
}

// Observer receives marks and window reports as they happen.
type Observer interface {
	OnMark(windowID string, e timeline.Entry)
	OnWindowReport(r Report)
}

// Deps are the capabilities a Copilot is built from. Nil fields get
// do-nothing implementations, except Time and Queue which get real ones.
type Deps struct {
	GPS       GPS
	Radio     Radio
	Clock     Clock
	Transport Transport
	Engine    ScriptEngine
	Defs      MessageDefs
	Time      systime.Source
	Queue     *scheduler.Queue
	Logger    logger.Logger
	Observer  Observer
}

func (d *Deps) applyDefaults() {
	if d.GPS == nil {
		d.GPS = nopGPS{}
	}
	if d.Radio == nil {
		d.Radio = &nopRadio{}
	}
	if d.Clock == nil {
		d.Clock = nopClock{}
	}
	if d.Transport == nil {
		d.Transport = nopTransport{}
	}
	if d.Engine == nil {
		d.Engine = nopEngine{}
	}
	if d.Defs == nil {
		d.Defs = nopDefs{}
	}
	if d.Time == nil {
		d.Time = systime.NewMonotonic()
	}
	if d.Queue == nil {
		d.Queue = scheduler.NewQueue()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
}

type nopGPS struct{}

func (nopGPS) RequestNewLock() {}

// nopRadio tracks its own state so the stop/restart choreography stays
// observable without hardware.
type nopRadio struct{ active bool }

func (r *nopRadio) IsActive() bool { return r.active }
func (r *nopRadio) StartWarmup()   { r.active = true }
func (r *nopRadio) Stop()          { r.active = false }

type nopClock struct{}

func (nopClock) GoHighSpeed() {}
func (nopClock) GoLowSpeed()  {}

type nopTransport struct{}

func (nopTransport) SendRegularTelemetry(uint32) error      { return nil }
func (nopTransport) SendBasicTelemetry(uint32) error        { return nil }
func (nopTransport) SendCustomMessage(string, uint32) error { return nil }

type nopEngine struct{}

func (nopEngine) UsesGpsApi(string) bool     { return false }
func (nopEngine) UsesMessageApi(string) bool { return false }
func (nopEngine) Run(string, gps.Fix) bool   { return true }

type nopDefs struct{}

func (nopDefs) HasDefinition(string) bool { return false }

type nopObserver struct{}

func (nopObserver) OnMark(string, timeline.Entry) {}
func (nopObserver) OnWindowReport(Report)         {}
