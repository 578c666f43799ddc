package copilot

import "github.com/skytrace/copilot/internal/timeline"

// Mark names.
const (
	MarkOnGpsLock       = "ON_GPS_LOCK"
	MarkOnGpsLockCached = "ON_GPS_LOCK_CACHED"
	MarkCoast           = "COAST"

	MarkPrepareStart = "PREPARE_WINDOW_SCHEDULE_START"
	MarkPrepareEnd   = "PREPARE_WINDOW_SCHEDULE_END"
	MarkLockoutStart = "LOCKOUT_START"
	MarkWindowEnd    = "WINDOW_END"

	MarkTxWarmup           = "TX_WARMUP"
	MarkTxDisableGpsEnable = "TX_DISABLE_GPS_ENABLE"
	MarkReqNewGpsLock      = "REQ_NEW_GPS_LOCK"
	MarkEnableRadio        = "ENABLE_RADIO"
	MarkDisableRadio       = "DISABLE_RADIO"

	MarkJsExec       = "JS_EXEC"
	MarkJsExecFailed = "JS_EXEC_FAILED"
	MarkJsNoExec     = "JS_NO_EXEC"

	MarkSendRegular            = "SEND_REGULAR_TYPE1"
	MarkSendBasic              = "SEND_BASIC_TELEMETRY"
	MarkSendCustom             = "SEND_CUSTOM_MESSAGE"
	MarkSendNoMsgNone          = "SEND_NO_MSG_NONE"
	MarkSendNoMsgNoDefault     = "SEND_NO_MSG_BAD_JS_NO_DEFAULT"
	MarkSendNoMsgNoAbleDefault = "SEND_NO_MSG_BAD_JS_NO_ABLE_DEFAULT"
	MarkSendFailed             = "SEND_FAILED"
)

// Mark records name on the current window's timeline, logs it with its
// notional time, and hands it to the observer. In test mode it is also
// appended to the active mark list.
func (c *Copilot) Mark(name string) {
	at := c.tl.Event(name)
	c.l.Info("[%s] %s", c.time.NotionalAt(at), name)
	e := timeline.Entry{Name: name, AtUs: at}
	if c.cfg.TestMode && c.markListID != "" {
		if list, ok := c.markLists[c.markListID]; ok {
			c.markLists[c.markListID] = append(list, e)
		}
	}
	c.obs.OnMark(c.windowID, e)
}

// CreateMarkList starts collecting marks under id. Only one list collects at
// a time; creating another list switches collection to it.
func (c *Copilot) CreateMarkList(id string) {
	c.markLists[id] = []timeline.Entry{}
	c.markListID = id
}

// GetMarkList returns the marks collected under id.
func (c *Copilot) GetMarkList(id string) []timeline.Entry {
	return append([]timeline.Entry(nil), c.markLists[id]...)
}

// DestroyMarkList drops the list and stops collecting into it.
func (c *Copilot) DestroyMarkList(id string) {
	delete(c.markLists, id)
	if c.markListID == id {
		c.markListID = ""
	}
}

// Timeline returns the marks of the current window.
func (c *Copilot) Timeline() []timeline.Entry {
	return c.tl.Entries()
}
