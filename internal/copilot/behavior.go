package copilot

import "fmt"

// Disposition is what a slot transmits in its period.
type Disposition int

const (
	DispositionNone Disposition = iota
	DispositionDefault
	DispositionCustom
)

func (d Disposition) String() string {
	switch d {
	case DispositionNone:
		return "none"
	case DispositionDefault:
		return "default"
	case DispositionCustom:
		return "custom"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// ParseDisposition accepts "none" and "default". Custom is earned by a script
// and cannot be configured.
func ParseDisposition(s string) (Disposition, error) {
	switch s {
	case "", "none":
		return DispositionNone, nil
	case "default":
		return DispositionDefault, nil
	}
	return DispositionNone, fmt.Errorf("unknown default disposition %q", s)
}

// SendFunc performs a default send.
type SendFunc func(quitAfterMs uint32) error

// SlotBehavior is the per-window decision for one slot. It is computed once
// when the window is prepared and not changed afterwards.
type SlotBehavior struct {
	RunScript         bool
	Disposition       Disposition
	HasDefaultMessage bool
	CanSendDefaultNow bool
	DefaultSend       SendFunc
}

// SlotState is a slot's behavior plus what happened when its script ran.
type SlotState struct {
	SlotBehavior
	ScriptRanOk bool
}

// decide applies the slot decision table and the missing-definition override.
func decide(haveLock, usesGps, usesMsg, hasDef bool, def Disposition) (runScript bool, disp Disposition, overridden bool) {
	switch {
	case !haveLock && !usesGps && !usesMsg:
		runScript, disp = true, DispositionNone
	case !haveLock && !usesGps && usesMsg:
		runScript, disp = true, DispositionCustom
	case !haveLock && usesGps && !usesMsg:
		runScript, disp = false, DispositionNone
	case !haveLock && usesGps && usesMsg:
		runScript, disp = false, DispositionNone
	case haveLock && !usesGps && !usesMsg:
		runScript, disp = true, def
	case haveLock && !usesGps && usesMsg:
		runScript, disp = true, DispositionCustom
	case haveLock && usesGps && !usesMsg:
		runScript, disp = true, def
	case haveLock && usesGps && usesMsg:
		runScript, disp = true, DispositionCustom
	}

	if !hasDef {
		prior := disp
		switch {
		case def == DispositionNone:
			disp = DispositionNone
		case haveLock:
			disp = DispositionDefault
		default:
			disp = DispositionNone
		}
		overridden = disp != prior
	}
	return runScript, disp, overridden
}

// ComputeSlotBehavior decides whether slot's script runs this window and what
// the slot transmits. The script's API usage and the slot's message
// definition are looked up through the engine and store.
func (c *Copilot) ComputeSlotBehavior(slot string, haveGpsLock bool, defaultDisposition Disposition, defaultSend SendFunc) SlotBehavior {
	usesGps := c.engine.UsesGpsApi(slot)
	usesMsg := c.engine.UsesMessageApi(slot)
	hasDef := c.defs.HasDefinition(slot)

	runScript, disp, overridden := decide(haveGpsLock, usesGps, usesMsg, hasDef, defaultDisposition)

	b := SlotBehavior{
		RunScript:         runScript,
		Disposition:       disp,
		HasDefaultMessage: defaultDisposition != DispositionNone && defaultSend != nil,
		CanSendDefaultNow: haveGpsLock,
		DefaultSend:       defaultSend,
	}

	c.l.Info("%s: haveGpsLock=%v usesGpsApi=%v usesMsgApi=%v hasMsgDef=%v default=%s",
		slot, haveGpsLock, usesGps, usesMsg, hasDef, defaultDisposition)
	if overridden {
		c.l.Info("%s: no message definition, disposition overridden to %s", slot, disp)
	}
	c.l.Info("%s: runScript=%v disposition=%s hasDefault=%v canSendDefaultNow=%v",
		slot, b.RunScript, b.Disposition, b.HasDefaultMessage, b.CanSendDefaultNow)
	return b
}
