// Package copilot is the window scheduler. On every GPS lock it works out
// when the next ten-minute window starts, decides what each of the five slots
// does, and arms the window's events: lockout start, radio warm-up, the slot
// 1 script, five periods, radio-disable/GPS-reacquire and window end.
//
// All entry points, including OnGpsLock, must be called from the goroutine
// that drives the event queue.
package copilot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

// events is the arena of named handles, created once and re-armed per window.
type events struct {
	lockoutStart *scheduler.Event
	warmup       *scheduler.Event
	reacquire    *scheduler.Event
	windowEnd    *scheduler.Event
	// period[0] runs slot 1's script ahead of the window
	period [NumSlots + 1]*scheduler.Event
}

type pendingLock struct {
	fix      gps.Fix
	fixUs    uint64
	haveLock bool
}

// Copilot schedules windows.
type Copilot struct {
	cfg Config

	gps       GPS
	radio     Radio
	clock     Clock
	transport Transport
	engine    ScriptEngine
	defs      MessageDefs
	time      systime.Source
	q         *scheduler.Queue
	l         logger.Logger
	obs       Observer

	tl *timeline.Timeline
	ev events

	// slots is indexed 1..NumSlots
	slots [NumSlots + 1]SlotState

	windowID      string
	windowStartUs uint64
	haveLock      bool
	fix           gps.Fix
	prepared      bool
	inWindow      bool
	warmupArmed   bool
	pending       *pendingLock

	markLists  map[string][]timeline.Entry
	markListID string
}

// New builds a Copilot. cfg is assumed valid.
func New(cfg Config, deps Deps) *Copilot {
	deps.applyDefaults()
	c := &Copilot{
		cfg:       cfg,
		gps:       deps.GPS,
		radio:     deps.Radio,
		clock:     deps.Clock,
		transport: deps.Transport,
		engine:    deps.Engine,
		defs:      deps.Defs,
		time:      deps.Time,
		q:         deps.Queue,
		l:         deps.Logger,
		obs:       deps.Observer,
		markLists: make(map[string][]timeline.Entry),
	}
	c.tl = timeline.New(c.time)
	c.ev.lockoutStart = c.q.NewEvent("LOCKOUT_START", c.onLockoutStart)
	c.ev.warmup = c.q.NewEvent("TX_WARMUP", c.onWarmup)
	c.ev.reacquire = c.q.NewEvent("TX_DISABLE_GPS_ENABLE", c.onReacquire)
	c.ev.windowEnd = c.q.NewEvent("WINDOW_END", c.onWindowEnd)
	for k := 0; k <= NumSlots; k++ {
		c.ev.period[k] = c.q.NewEvent(fmt.Sprintf("PERIOD%d", k), func() { c.onPeriod(k) })
	}
	return c
}

// Start requests the first GPS lock.
func (c *Copilot) Start() {
	c.l.Info("Window start minute %d, requesting GPS lock", c.cfg.StartMinute)
	c.gps.RequestNewLock()
}

// OnGpsLock takes a new fix. Time is realigned immediately. Outside a window
// the next window is prepared at once, replacing any window already armed;
// inside a window the fix is held until the window ends.
func (c *Copilot) OnGpsLock(fix gps.Fix) {
	if fix.Quality == gps.QualityNone {
		c.l.Warning("Ignoring GPS fix without lock at %s", fix.DateTime())
		return
	}
	c.setTimeFromGps(fix)
	fixUs := c.time.SystemUsAtLastTimeChange()
	haveLock := fix.HasPositionLock()

	if c.inWindow {
		c.pending = &pendingLock{fix: fix, fixUs: fixUs, haveLock: haveLock}
		c.Mark(MarkOnGpsLockCached)
		return
	}

	c.beginRun()
	c.Mark(MarkOnGpsLock)
	c.fix = fix
	c.PrepareWindow(ComputeWindowStartUs(c.cfg.StartMinute, fix, fixUs), fixUs, haveLock)
}

func (c *Copilot) setTimeFromGps(fix gps.Fix) {
	offsetUs := c.time.SetFromGps(fix)
	switch {
	case offsetUs > 0:
		c.l.Info("Time set from GPS %s (%s), prior time was running slow by %d ms", fix.DateTime(), fix.Quality, offsetUs/1000)
	case offsetUs < 0:
		c.l.Info("Time set from GPS %s (%s), prior time was running fast by %d ms", fix.DateTime(), fix.Quality, -offsetUs/1000)
	default:
		c.l.Info("Time set from GPS %s (%s)", fix.DateTime(), fix.Quality)
	}
}

// beginRun starts a fresh timeline under a new window id.
func (c *Copilot) beginRun() {
	c.tl.Reset()
	c.windowID = uuid.NewString()
}

// PrepareWindow computes every slot's behavior and arms the window's events.
// gpsFixUs is when the fix was obtained; the pre-window budget is clipped to
// the time between it and windowStartUs.
func (c *Copilot) PrepareWindow(windowStartUs, gpsFixUs uint64, haveGpsLock bool) {
	c.Mark(MarkPrepareStart)

	c.windowStartUs = windowStartUs
	c.haveLock = haveGpsLock
	c.prepared = true

	for k := 1; k <= NumSlots; k++ {
		def := c.cfg.Slots[k-1]
		c.slots[k] = SlotState{
			SlotBehavior: c.ComputeSlotBehavior(SlotName(k), haveGpsLock, def.Disposition, c.sendFunc(def.Send)),
		}
	}

	wantUs := uint64(c.cfg.ScriptAllowance.Microseconds() + c.cfg.Warmup.Microseconds())
	var availUs uint64
	if windowStartUs > gpsFixUs {
		availUs = windowStartUs - gpsFixUs
	}
	usedUs := min(wantUs, availUs)
	if usedUs < wantUs {
		c.l.Info("Pre-window time clamped from %s to %s", systime.FormatDuration(wantUs), systime.FormatDuration(usedUs))
	}
	anchorUs := windowStartUs - usedUs

	c.arm(c.ev.lockoutStart, anchorUs)
	c.arm(c.ev.period[0], anchorUs)

	last := c.lastTransmittingSlot()
	c.warmupArmed = last > 0
	if c.warmupArmed {
		c.arm(c.ev.warmup, anchorUs)
	} else {
		c.l.Info("Did NOT schedule TX_WARMUP, no slot transmits")
	}

	// reacquire wins the window start unless a slot transmits
	c.arm(c.ev.reacquire, windowStartUs)
	for k := 1; k <= NumSlots; k++ {
		c.arm(c.ev.period[k], c.periodStartUs(k))
	}
	if last > 0 {
		// armed after the period, so it fires right behind it
		c.arm(c.ev.reacquire, c.periodStartUs(last))
	}
	c.arm(c.ev.windowEnd, c.periodStartUs(NumSlots))

	c.Mark(MarkPrepareEnd)
}

func (c *Copilot) arm(e *scheduler.Event, atUs uint64) {
	c.q.Arm(e, atUs)
	c.l.Info("Scheduled %s for %s", e.Name(), c.time.NotionalAt(atUs))
}

func (c *Copilot) periodStartUs(k int) uint64 {
	if c.cfg.Compressed {
		return c.windowStartUs + uint64(k-1)
	}
	return c.windowStartUs + uint64(k-1)*uint64(c.cfg.SlotSpacing.Microseconds())
}

// lastTransmittingSlot returns the highest slot whose disposition is not
// None, or 0.
func (c *Copilot) lastTransmittingSlot() int {
	for k := NumSlots; k >= 1; k-- {
		if c.slots[k].Disposition != DispositionNone {
			return k
		}
	}
	return 0
}

func (c *Copilot) sendFunc(kind SendKind) SendFunc {
	switch kind {
	case SendRegular:
		return func(quitAfterMs uint32) error {
			c.Mark(MarkSendRegular)
			return c.transport.SendRegularTelemetry(quitAfterMs)
		}
	case SendBasic:
		return func(quitAfterMs uint32) error {
			c.Mark(MarkSendBasic)
			return c.transport.SendBasicTelemetry(quitAfterMs)
		}
	}
	return nil
}

func (c *Copilot) onLockoutStart() {
	c.inWindow = true
	c.Mark(MarkLockoutStart)
}

func (c *Copilot) onWarmup() {
	// a stale arming from a replaced schedule cannot be withdrawn
	if !c.warmupArmed {
		return
	}
	c.Mark(MarkTxWarmup)
	c.radio.StartWarmup()
}

func (c *Copilot) onPeriod(k int) {
	c.Mark(fmt.Sprintf("PERIOD%d_START", k))
	if k > 0 {
		var quitAfterMs uint32
		if k == NumSlots {
			quitAfterMs = uint32(c.cfg.FinalSlotCutoff.Milliseconds())
		}
		c.DoPeriodBehavior(k, quitAfterMs)
	}
	if k < NumSlots {
		c.runScriptFor(k + 1)
	}
	c.Mark(fmt.Sprintf("PERIOD%d_END", k))
}

func (c *Copilot) runScriptFor(k int) {
	s := &c.slots[k]
	if !s.RunScript {
		c.Mark(MarkJsNoExec)
		return
	}
	c.Mark(MarkJsExec)
	s.ScriptRanOk = c.RunSlotScript(k)
	if !s.ScriptRanOk {
		c.Mark(MarkJsExecFailed)
	}
}

// RunSlotScript runs slot k's script with the radio off and the clock fast,
// then restores both.
func (c *Copilot) RunSlotScript(k int) bool {
	wasActive := c.radio.IsActive()
	if wasActive {
		c.Mark(MarkDisableRadio)
		c.radio.Stop()
	}
	c.clock.GoHighSpeed()
	start := time.Now()
	ok := c.engine.Run(SlotName(k), c.fix)
	c.l.Info("%s script ran in %s, ok=%v", SlotName(k), time.Since(start).Round(time.Microsecond), ok)
	c.clock.GoLowSpeed()
	if wasActive {
		c.Mark(MarkEnableRadio)
		c.radio.StartWarmup()
	}
	return ok
}

// DoPeriodBehavior carries out slot k's send decision.
func (c *Copilot) DoPeriodBehavior(k int, quitAfterMs uint32) {
	s := &c.slots[k]
	switch s.Disposition {
	case DispositionNone:
		c.Mark(MarkSendNoMsgNone)
	case DispositionCustom:
		if s.ScriptRanOk {
			c.Mark(MarkSendCustom)
			if err := c.transport.SendCustomMessage(SlotName(k), quitAfterMs); err != nil {
				c.sendFailed(k, "custom", err)
			}
			return
		}
		c.sendDefault(k, quitAfterMs)
	case DispositionDefault:
		c.sendDefault(k, quitAfterMs)
	}
}

func (c *Copilot) sendDefault(k int, quitAfterMs uint32) {
	s := &c.slots[k]
	switch {
	case !s.HasDefaultMessage:
		c.Mark(MarkSendNoMsgNoDefault)
	case s.CanSendDefaultNow:
		if err := s.DefaultSend(quitAfterMs); err != nil {
			c.sendFailed(k, "default", err)
		}
	default:
		c.Mark(MarkSendNoMsgNoAbleDefault)
	}
}

func (c *Copilot) sendFailed(k int, kind string, err error) {
	c.Mark(MarkSendFailed)
	c.l.Warning("%s %s message: %v", SlotName(k), kind, err)
}

func (c *Copilot) onReacquire() {
	c.Mark(MarkTxDisableGpsEnable)
	c.radio.Stop()
	c.Mark(MarkReqNewGpsLock)
	c.gps.RequestNewLock()
}

// onWindowEnd reports the finished window and prepares the next one, from
// the lock cached during the window if there is one, otherwise by coasting
// one decade on without a lock.
func (c *Copilot) onWindowEnd() {
	c.Mark(MarkWindowEnd)
	c.inWindow = false

	report := c.report()
	if !c.cfg.TestMode {
		c.tl.Report(c.l, "Window "+c.windowID, c.time.NotionalAt)
	}
	c.obs.OnWindowReport(report)

	c.beginRun()
	now := c.time.NowUs()
	if p := c.pending; p != nil {
		c.pending = nil
		c.fix = p.fix
		ws := ComputeWindowStartUs(c.cfg.StartMinute, p.fix, p.fixUs)
		for ws < now {
			ws += decadeUs
		}
		c.Mark(MarkOnGpsLock)
		c.PrepareWindow(ws, max(p.fixUs, now), p.haveLock)
		return
	}
	c.Mark(MarkCoast)
	c.PrepareWindow(c.windowStartUs+decadeUs, now, false)
}

func (c *Copilot) report() Report {
	r := Report{
		WindowID:      c.windowID,
		StartMinute:   c.cfg.StartMinute,
		WindowStartUs: c.windowStartUs,
		WindowStart:   c.time.NotionalAt(c.windowStartUs),
		HaveGpsLock:   c.haveLock,
		Marks:         c.tl.Entries(),
	}
	for k := 1; k <= NumSlots; k++ {
		r.Slots = append(r.Slots, c.slotSummary(k))
	}
	return r
}

func (c *Copilot) slotSummary(k int) SlotSummary {
	s := c.slots[k]
	return SlotSummary{
		Slot:        SlotName(k),
		RunScript:   s.RunScript,
		Disposition: s.Disposition.String(),
		ScriptRanOk: s.ScriptRanOk,
	}
}

// Slot returns slot k's state for the current window.
func (c *Copilot) Slot(k int) SlotState {
	return c.slots[k]
}

// WindowStartUs returns the start of the prepared window.
func (c *Copilot) WindowStartUs() uint64 { return c.windowStartUs }

// LastFix returns the fix the current window was scheduled from.
func (c *Copilot) LastFix() (gps.Fix, bool) { return c.fix, c.prepared }

// InWindow reports whether a window is executing.
func (c *Copilot) InWindow() bool { return c.inWindow }

// Status returns a snapshot of the scheduler.
func (c *Copilot) Status() Status {
	st := Status{
		WindowID:    c.windowID,
		Prepared:    c.prepared,
		InWindow:    c.inWindow,
		HaveGpsLock: c.haveLock,
		LockPending: c.pending != nil,
		StartMinute: c.cfg.StartMinute,
	}
	if c.prepared {
		st.WindowStartUs = c.windowStartUs
		st.WindowStart = c.time.NotionalAt(c.windowStartUs)
		st.LastFix = c.fix.DateTime()
		for k := 1; k <= NumSlots; k++ {
			st.Slots = append(st.Slots, c.slotSummary(k))
		}
	}
	return st
}

// Report summarizes a finished window.
type Report struct {
	WindowID      string           `json:"windowId"`
	StartMinute   int              `json:"startMinute"`
	WindowStartUs uint64           `json:"windowStartUs"`
	WindowStart   string           `json:"windowStart"`
	HaveGpsLock   bool             `json:"haveGpsLock"`
	Slots         []SlotSummary    `json:"slots"`
	Marks         []timeline.Entry `json:"marks"`
}

// SlotSummary is the reportable part of a SlotState.
type SlotSummary struct {
	Slot        string `json:"slot"`
	RunScript   bool   `json:"runScript"`
	Disposition string `json:"disposition"`
	ScriptRanOk bool   `json:"scriptRanOk"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	WindowID      string        `json:"windowId"`
	Prepared      bool          `json:"prepared"`
	InWindow      bool          `json:"inWindow"`
	HaveGpsLock   bool          `json:"haveGpsLock"`
	LockPending   bool          `json:"lockPending"`
	StartMinute   int           `json:"startMinute"`
	WindowStartUs uint64        `json:"windowStartUs,omitempty"`
	WindowStart   string        `json:"windowStart,omitempty"`
	LastFix       string        `json:"lastFix,omitempty"`
	Slots         []SlotSummary `json:"slots,omitempty"`
}
