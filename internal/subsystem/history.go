package subsystem

import (
	"context"
	"sync"
	"time"

	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

const (
	historyQueueSize = 16
	historySaveLimit = 5 * time.Second
)

type reportSaver interface {
	Save(ctx context.Context, r copilot.Report) error
}

// historyWriter saves window reports off the loop goroutine.
type historyWriter struct {
	db    reportSaver
	l     logger.Logger
	queue chan copilot.Report
	wg    sync.WaitGroup
	once  sync.Once
}

func newHistoryWriter(db reportSaver, l logger.Logger) *historyWriter {
	w := &historyWriter{
		db:    db,
		l:     l,
		queue: make(chan copilot.Report, historyQueueSize),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *historyWriter) run() {
	defer w.wg.Done()
	for r := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), historySaveLimit)
		if err := w.db.Save(ctx, r); err != nil {
			w.l.Error("history: save window %s: %v", r.WindowID, err)
		}
		cancel()
	}
}

func (w *historyWriter) OnMark(string, timeline.Entry) {}

func (w *historyWriter) OnWindowReport(r copilot.Report) {
	select {
	case w.queue <- r:
	default:
		w.l.Warning("history: queue full, dropping window %s", r.WindowID)
	}
}

// Close drains pending saves.
func (w *historyWriter) Close() {
	w.once.Do(func() {
		close(w.queue)
		w.wg.Wait()
	})
}
