// Package jsengine runs slot scripts on goja. Each run gets a fresh runtime
// with a read-only gps object describing the lock and a msg object whose
// setters fill the slot's message definition.
package jsengine

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/pkg/logger"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 2 * time.Second

var (
	ErrTimeout  = errors.New("script timed out")
	ErrNoScript = errors.New("no script")
)

var (
	gpsApiRe = regexp.MustCompile(`\bgps\.`)
	msgApiRe = regexp.MustCompile(`\bmsg\.`)
)

// Source supplies scripts, message definitions and require() modules.
// *slotstore.Store satisfies it.
type Source interface {
	GetScript(slot string) (string, error)
	Definition(slot string) (slotstore.MsgDef, error)
	ReadModule(name string) ([]byte, error)
}

// Engine evaluates slot scripts.
type Engine struct {
	src     Source
	l       logger.Logger
	timeout time.Duration

	mu   sync.Mutex
	last map[string]*slotstore.Message
}

// New creates an engine. A zero timeout means DefaultTimeout.
func New(src Source, l logger.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		src:     src,
		l:       l,
		timeout: timeout,
		last:    make(map[string]*slotstore.Message),
	}
}

func (e *Engine) script(slot string) string {
	src, err := e.src.GetScript(slot)
	if err != nil {
		e.l.Warning("%s: read script: %v", slot, err)
		return ""
	}
	return src
}

// UsesGpsApi reports whether slot's script references the gps object.
func (e *Engine) UsesGpsApi(slot string) bool {
	return gpsApiRe.MatchString(e.script(slot))
}

// UsesMessageApi reports whether slot's script references the msg object.
func (e *Engine) UsesMessageApi(slot string) bool {
	return msgApiRe.MatchString(e.script(slot))
}

// Run executes slot's script against fix. A failure is logged and reported
// as false; the message the script built is kept for LastMessage either way.
func (e *Engine) Run(slot string, fix gps.Fix) bool {
	if err := e.Exec(slot, fix); err != nil {
		e.l.Warning("%s: script failed: %v", slot, err)
		return false
	}
	return true
}

// Exec is Run with the error returned.
func (e *Engine) Exec(slot string, fix gps.Fix) error {
	src := e.script(slot)
	if src == "" {
		return fmt.Errorf("%s: %w", slot, ErrNoScript)
	}
	def, err := e.src.Definition(slot)
	if err != nil {
		return err
	}
	msg := slotstore.NewMessage(def)
	defer func() {
		e.mu.Lock()
		e.last[slot] = msg
		e.mu.Unlock()
	}()

	rt, err := newRuntime(e.l, slot, e.src.ReadModule)
	if err != nil {
		return err
	}
	if err := rt.Set("gps", gpsObject(rt.Runtime, fix)); err != nil {
		return err
	}
	if err := rt.Set("msg", msgObject(rt.Runtime, msg)); err != nil {
		return err
	}

	timer := time.AfterFunc(e.timeout, func() {
		rt.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	_, err = rt.RunScript(slot+".js", src)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%s: %w after %s", slot, ErrTimeout, e.timeout)
	}
	return err
}

// LastMessage returns the message slot's most recent run produced.
func (e *Engine) LastMessage(slot string) (*slotstore.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.last[slot]
	return m, ok
}

// ParseResult is the outcome of a syntax check.
type ParseResult struct {
	Ok      bool   `json:"ok"`
	Err     string `json:"err"`
	ParseMs int64  `json:"parseMs"`
}

// Parse compiles src without running it.
func Parse(src string) ParseResult {
	start := time.Now()
	_, err := goja.Compile("script.js", src, false)
	res := ParseResult{Ok: err == nil, ParseMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

func gpsObject(vm *goja.Runtime, fix gps.Fix) *goja.Object {
	o := vm.NewObject()
	o.Set("GetTimeHour", func() int { return fix.Hour })
	o.Set("GetTimeMinute", func() int { return fix.Minute })
	o.Set("GetTimeSecond", func() int { return fix.Second })
	o.Set("GetLatitude", func() float64 { return fix.Latitude })
	o.Set("GetLongitude", func() float64 { return fix.Longitude })
	o.Set("GetAltitudeM", func() float64 { return fix.AltitudeM })
	o.Set("GetSpeedKnots", func() float64 { return fix.SpeedKnots })
	o.Set("GetSatellites", func() int { return fix.Satellites })
	return o
}

func msgObject(vm *goja.Runtime, msg *slotstore.Message) *goja.Object {
	o := vm.NewObject()
	for _, f := range msg.Def().Fields {
		name := f.FieldName()
		o.Set("Set"+name, func(v float64) error { return msg.Set(name, v) })
		o.Set("Get"+name, func() float64 {
			v, _ := msg.Get(name)
			return v
		})
	}
	return o
}
