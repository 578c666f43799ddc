package server

import (
	"context"
	"errors"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

// Custom JSON-RPC error codes.
const (
	codeUnknownSlot   = jrpc2.Code(-32001)
	codeUnavailable   = jrpc2.Code(-32002)
	codeStoreFailure  = jrpc2.Code(-32003)
	codeUnauthorized  = jrpc2.Code(-32600)
	codeInvalidParams = jrpc2.Code(-32602)
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// SlotStore holds slot message definitions and scripts.
type SlotStore interface {
	GetMsgDef(slot string) (string, error)
	SetMsgDef(slot, msgDef string) error
	GetScript(slot string) (string, error)
	SetScript(slot, script string) error
}

// Scheduler is the running copilot, reached from RPC goroutines.
type Scheduler interface {
	Status(ctx context.Context) (copilot.Status, error)
	SimulateLock(ctx context.Context, fix gps.Fix) error
	Marks(ctx context.Context) ([]timeline.Entry, error)
}

// History returns finished window reports.
type History interface {
	Recent(ctx context.Context, n int) ([]copilot.Report, error)
}

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Auth token (required; empty means RPC disabled)
	Version   string
	Commit    string
	BuildType string
}

// RPCServer manages the JSON-RPC 2.0 bridge and method handlers.
type RPCServer struct {
	methods   handler.Map
	bridge    jhttp.Bridge
	notifier  *RPCNotifier
	l         logger.Logger
	auth      *tokenAuth
	version   string
	commit    string
	buildType string
	store     SlotStore
	sched     Scheduler
	history   History
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// SlotParam names a slot.
type SlotParam struct {
	Slot string `json:"slot"`
}

// MsgDefParams is the input for msgdef.set.
type MsgDefParams struct {
	Slot   string `json:"slot"`
	MsgDef string `json:"msgDef"`
}

// MsgDefResult is the response for msgdef.get.
type MsgDefResult struct {
	Slot   string `json:"slot"`
	MsgDef string `json:"msgDef"`
}

// ScriptParams is the input for script.set and script.parse. script.parse
// checks the stored script when Script is empty.
type ScriptParams struct {
	Slot   string `json:"slot,omitempty"`
	Script string `json:"script"`
}

// ScriptResult is the response for script.get.
type ScriptResult struct {
	Slot   string `json:"slot"`
	Script string `json:"script"`
}

// OkResult reports whether a write was accepted.
type OkResult struct {
	Ok  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

// LockParams is the input for sched.simulateLock.
type LockParams struct {
	DateTime string `json:"dateTime"`          // "YYYY-MM-DD HH:MM:SS.mmm"
	Quality  string `json:"quality,omitempty"` // "3d+" (default) or "time-only"
}

// MarksResult is the response for sched.marks.
type MarksResult struct {
	Marks []timeline.Entry `json:"marks"`
}

// HistoryParams is the input for window.history.
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResult is the response for window.history.
type HistoryResult struct {
	Windows []copilot.Report `json:"windows"`
}

// NewRPCServer creates an RPCServer with method handlers and HTTP bridge.
// history may be nil.
func NewRPCServer(cfg *RPCConfig, l logger.Logger, store SlotStore, sched Scheduler, history History) *RPCServer {
	rs := &RPCServer{
		l:         l,
		notifier:  NewRPCNotifier(l),
		auth:      newTokenAuth(cfg.Secret, l),
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
		store:     store,
		sched:     sched,
		history:   history,
	}

	rs.methods = handler.Map{
		"system.getVersion":  handler.New(rs.systemGetVersion),
		"msgdef.get":         handler.New(rs.msgDefGet),
		"msgdef.set":         handler.New(rs.msgDefSet),
		"script.get":         handler.New(rs.scriptGet),
		"script.set":         handler.New(rs.scriptSet),
		"script.parse":       handler.New(rs.scriptParse),
		"sched.status":       handler.New(rs.schedStatus),
		"sched.simulateLock": handler.New(rs.schedSimulateLock),
		"sched.marks":        handler.New(rs.schedMarks),
		"window.history":     handler.New(rs.windowHistory),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// Notifier returns the push notifier, a copilot.Observer.
func (rs *RPCServer) Notifier() *RPCNotifier { return rs.notifier }

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

func storeError(err error) error {
	if errors.Is(err, slotstore.ErrUnknownSlot) {
		return &jrpc2.Error{Code: codeUnknownSlot, Message: err.Error()}
	}
	return &jrpc2.Error{Code: codeStoreFailure, Message: err.Error()}
}

func (rs *RPCServer) msgDefGet(_ context.Context, p *SlotParam) (*MsgDefResult, error) {
	def, err := rs.store.GetMsgDef(p.Slot)
	if err != nil {
		return nil, storeError(err)
	}
	return &MsgDefResult{Slot: p.Slot, MsgDef: def}, nil
}

// msgDefSet reports an invalid definition in the result, not as an RPC
// error, so editors can show it next to the text.
func (rs *RPCServer) msgDefSet(_ context.Context, p *MsgDefParams) (*OkResult, error) {
	if err := slotstore.CheckSlot(p.Slot); err != nil {
		return nil, storeError(err)
	}
	if err := rs.store.SetMsgDef(p.Slot, p.MsgDef); err != nil {
		return &OkResult{Err: err.Error()}, nil
	}
	rs.l.Info("rpc: %s message definition updated", p.Slot)
	return &OkResult{Ok: true}, nil
}

func (rs *RPCServer) scriptGet(_ context.Context, p *SlotParam) (*ScriptResult, error) {
	src, err := rs.store.GetScript(p.Slot)
	if err != nil {
		return nil, storeError(err)
	}
	return &ScriptResult{Slot: p.Slot, Script: src}, nil
}

func (rs *RPCServer) scriptSet(_ context.Context, p *ScriptParams) (*OkResult, error) {
	if err := rs.store.SetScript(p.Slot, p.Script); err != nil {
		return nil, storeError(err)
	}
	rs.l.Info("rpc: %s script updated (%d bytes)", p.Slot, len(p.Script))
	return &OkResult{Ok: true}, nil
}

func (rs *RPCServer) scriptParse(_ context.Context, p *ScriptParams) (*jsengine.ParseResult, error) {
	src := p.Script
	if src == "" && p.Slot != "" {
		var err error
		if src, err = rs.store.GetScript(p.Slot); err != nil {
			return nil, storeError(err)
		}
	}
	res := jsengine.Parse(src)
	return &res, nil
}

func (rs *RPCServer) schedStatus(ctx context.Context) (*copilot.Status, error) {
	st, err := rs.sched.Status(ctx)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	return &st, nil
}

func (rs *RPCServer) schedSimulateLock(ctx context.Context, p *LockParams) (*copilot.Status, error) {
	q := gps.Quality3DPlus
	switch p.Quality {
	case "", gps.Quality3DPlus.String():
	case gps.QualityTimeOnly.String():
		q = gps.QualityTimeOnly
	default:
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "quality must be 3d+ or time-only"}
	}
	fix, err := gps.ParseDateTime(p.DateTime, q)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := rs.sched.SimulateLock(ctx, fix); err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	return rs.schedStatus(ctx)
}

func (rs *RPCServer) schedMarks(ctx context.Context) (*MarksResult, error) {
	marks, err := rs.sched.Marks(ctx)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	if marks == nil {
		marks = []timeline.Entry{}
	}
	return &MarksResult{Marks: marks}, nil
}

func (rs *RPCServer) windowHistory(ctx context.Context, p *HistoryParams) (*HistoryResult, error) {
	if rs.history == nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: "history disabled"}
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	windows, err := rs.history.Recent(ctx, limit)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeStoreFailure, Message: err.Error()}
	}
	if windows == nil {
		windows = []copilot.Report{}
	}
	return &HistoryResult{Windows: windows}, nil
}

// Close shuts down the jrpc2 bridge and the notifier.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
	rs.notifier.Close()
}
