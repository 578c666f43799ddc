package subsystem

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/skytrace/copilot/internal/config"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/radio"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/internal/transport"
	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

func newTestStore(t *testing.T) (*slotstore.Store, *jsengine.Engine) {
	t.Helper()
	l := logger.NewMockLogger()
	store, err := slotstore.New(afero.NewMemMapFs(), "/slots", l)
	if err != nil {
		t.Fatal(err)
	}
	return store, jsengine.New(store, l, 0)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Dir = "/slots"
	cfg.RPC.Listen = ""
	cfg.RPC.Secret = "s3cret"
	return cfg
}

type testEnv struct {
	s      *Subsystem
	gps    *gps.Simulated
	pub    *transport.FakePublisher
	line   *radio.FakeLine
	cancel context.CancelFunc
	done   chan error
}

func startTestSubsystem(t *testing.T, cfg *config.Config, q gps.Quality) *testEnv {
	t.Helper()
	env := &testEnv{
		gps:  gps.NewSimulated(nil, 0, q),
		pub:  transport.NewFakePublisher(),
		line: &radio.FakeLine{},
		done: make(chan error, 1),
	}
	s, err := New(cfg, logger.NewNopLogger(), Options{
		Fs:        afero.NewMemMapFs(),
		Receiver:  env.gps,
		RadioLine: env.line,
		Publisher: env.pub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.s = s

	var ctx context.Context
	ctx, env.cancel = context.WithCancel(context.Background())
	go func() { env.done <- s.Run(ctx) }()
	t.Cleanup(func() {
		env.cancel()
		select {
		case err := <-env.done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return")
		}
		s.Close()
	})
	return env
}

func waitForStatus(t *testing.T, s *Subsystem, ok func(copilot.Status) bool) copilot.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		st, err := s.Status(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never matched: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_SeedsStoreAndRejectsBadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(testConfig(), logger.NewNopLogger(), Options{
		Fs:        fs,
		Receiver:  gps.NewSimulated(nil, 0, gps.QualityNone),
		Publisher: transport.NewFakePublisher(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	src, err := s.Store().GetScript("slot3")
	if err != nil || src != "print(\"I am slot3\");\n" {
		t.Errorf("seeded script = %q, %v", src, err)
	}

	bad := testConfig()
	bad.Schedule.StartMinute = 10
	if _, err := New(bad, logger.NewNopLogger(), Options{Fs: fs}); !errors.Is(err, copilot.ErrStartMinute) {
		t.Errorf("expected ErrStartMinute, got %v", err)
	}
}

func TestNew_FailedSetupReleasesResources(t *testing.T) {
	cfg := testConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "missing", "x", "history.db")
	pub := transport.NewFakePublisher()
	line := &radio.FakeLine{}

	s, err := New(cfg, logger.NewNopLogger(), Options{
		Fs:        afero.NewMemMapFs(),
		Receiver:  gps.NewSimulated(nil, 0, gps.Quality3DPlus),
		RadioLine: line,
		Publisher: pub,
	})
	if err == nil {
		s.Close()
		t.Fatal("expected an error for an unreachable history path")
	}
	if s != nil {
		t.Error("failed New should return a nil subsystem")
	}
	if !pub.Closed {
		t.Error("publisher not closed after failed setup")
	}
	if !line.Closed {
		t.Error("radio line not closed after failed setup")
	}
}

func TestRun_FirstLockPreparesWindow(t *testing.T) {
	env := startTestSubsystem(t, testConfig(), gps.Quality3DPlus)

	st := waitForStatus(t, env.s, func(st copilot.Status) bool { return st.Prepared })
	if !st.HaveGpsLock {
		t.Error("3D lock should schedule with haveGpsLock")
	}
	if st.InWindow {
		t.Error("window should not have started yet")
	}
	if env.gps.Requests() < 1 {
		t.Error("Start did not request a lock")
	}
	if len(st.Slots) != copilot.NumSlots {
		t.Errorf("slots = %d", len(st.Slots))
	}
}

func TestSimulateLock(t *testing.T) {
	env := startTestSubsystem(t, testConfig(), gps.QualityNone)
	ctx := context.Background()

	st, err := env.s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Prepared {
		t.Fatal("no lock yet, nothing should be prepared")
	}

	fix, err := gps.ParseDateTime("2025-01-01 12:09:50.000", gps.QualityTimeOnly)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.s.SimulateLock(ctx, fix); err != nil {
		t.Fatal(err)
	}
	st, err = env.s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Prepared || st.HaveGpsLock {
		t.Errorf("status = %+v", st)
	}
	if st.LastFix != fix.DateTime() {
		t.Errorf("LastFix = %q, want %q", st.LastFix, fix.DateTime())
	}

	marks, err := env.s.Marks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok, i := timeline.ContainsSubsequence(marks, []string{copilot.MarkOnGpsLock}); !ok {
		t.Errorf("mark %d missing from %v", i, marks)
	}
}

func TestLoopStoppedCallsFail(t *testing.T) {
	env := startTestSubsystem(t, testConfig(), gps.QualityNone)
	env.cancel()
	select {
	case <-env.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	env.done <- nil

	if _, err := env.s.Status(context.Background()); err == nil {
		t.Error("Status after stop should fail")
	}
}

func TestHistoryEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	s, err := New(cfg, logger.NewNopLogger(), Options{
		Fs:        afero.NewMemMapFs(),
		Receiver:  gps.NewSimulated(nil, 0, gps.QualityNone),
		Publisher: transport.NewFakePublisher(),
	})
	if err != nil {
		t.Fatal(err)
	}
	s.writer.OnWindowReport(copilot.Report{WindowID: "w1"})
	s.writer.Close()
	n, err := s.history.Count(context.Background())
	if err != nil || n != 1 {
		t.Errorf("count = %d, %v", n, err)
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeSaver) Save(_ context.Context, r copilot.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r.WindowID)
	return f.err
}

func TestHistoryWriter(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	mock := logger.NewMockLogger()
	w := newHistoryWriter(saver, mock)
	w.OnWindowReport(copilot.Report{WindowID: "a"})
	w.OnWindowReport(copilot.Report{WindowID: "b"})
	w.Close()
	w.Close()

	if len(saver.saved) != 2 || saver.saved[0] != "a" || saver.saved[1] != "b" {
		t.Errorf("saved = %v", saver.saved)
	}
	if len(mock.ErrorCalls) != 2 {
		t.Errorf("errors = %v", mock.ErrorCalls)
	}
}

type countingObserver struct {
	marks, reports int
}

func (c *countingObserver) OnMark(string, timeline.Entry) { c.marks++ }
func (c *countingObserver) OnWindowReport(copilot.Report) { c.reports++ }

func TestMultiObserver(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	m := multiObserver{a, b}
	m.OnMark("w", timeline.Entry{Name: "X"})
	m.OnWindowReport(copilot.Report{})
	if a.marks != 1 || b.marks != 1 || a.reports != 1 || b.reports != 1 {
		t.Errorf("a=%+v b=%+v", a, b)
	}
}
