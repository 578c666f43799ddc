package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/skytrace/copilot/pkg/logger"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the usual rate for u-blox style receivers.
	DefaultBaudRate = 9600
	// DefaultTimeOnlyAfter is how long a lock request waits for a position
	// lock before settling for a time-only fix.
	DefaultTimeOnlyAfter = 3 * time.Minute
)

var ErrAlreadyAcquiring = errors.New("gps: lock request already in progress")

// OpenFunc opens the receiver's serial port.
type OpenFunc func(port string, mode *serial.Mode) (io.ReadCloser, error)

func openSerial(port string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(port, mode)
}

// SerialReceiver reads NMEA from a serial port only while a lock is requested,
// so the receiver's UART is idle while the radio transmits.
type SerialReceiver struct {
	port          string
	baudRate      int
	timeOnlyAfter time.Duration
	open          OpenFunc
	l             logger.Logger

	mu        sync.Mutex
	onLock    func(Fix)
	acquiring bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// SerialOptions configures a SerialReceiver. Zero values take defaults.
type SerialOptions struct {
	Port          string
	BaudRate      int
	TimeOnlyAfter time.Duration
	// Open overrides how the port is opened; tests feed canned NMEA through it.
	Open OpenFunc
}

// NewSerialReceiver creates a receiver for the given port.
func NewSerialReceiver(l logger.Logger, opts SerialOptions) *SerialReceiver {
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.TimeOnlyAfter == 0 {
		opts.TimeOnlyAfter = DefaultTimeOnlyAfter
	}
	if opts.Open == nil {
		opts.Open = openSerial
	}
	return &SerialReceiver{
		port:          opts.Port,
		baudRate:      opts.BaudRate,
		timeOnlyAfter: opts.TimeOnlyAfter,
		open:          opts.Open,
		l:             l,
	}
}

// SetOnLock registers the lock callback. It is called from the reader
// goroutine; callers that need single-threaded delivery must hop threads.
func (r *SerialReceiver) SetOnLock(fn func(Fix)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLock = fn
}

// RequestNewLock starts reading the port until a lock is obtained.
// A request while one is in flight is ignored.
func (r *SerialReceiver) RequestNewLock() {
	if err := r.acquire(); err != nil && !errors.Is(err, ErrAlreadyAcquiring) {
		r.l.Error("gps: %v", err)
	}
}

func (r *SerialReceiver) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquiring {
		return ErrAlreadyAcquiring
	}
	port, err := r.open(r.port, &serial.Mode{BaudRate: r.baudRate})
	if err != nil {
		return fmt.Errorf("open %s: %w", r.port, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.acquiring = true
	r.cancel = cancel
	r.wg.Add(1)
	go r.read(ctx, port)
	return nil
}

func (r *SerialReceiver) read(ctx context.Context, port io.ReadCloser) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		cancel := r.cancel
		r.acquiring = false
		r.cancel = nil
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()
	go func() {
		// unblocks the scanner on Close and releases the port on return
		<-ctx.Done()
		port.Close()
	}()

	var (
		p        Parser
		timeOnly *Fix
		deadline = time.Now().Add(r.timeOnlyAfter)
	)
	sc := bufio.NewScanner(port)
	for sc.Scan() {
		fix, ok, err := p.Feed(sc.Text())
		if err != nil || !ok {
			continue
		}
		if fix.Quality == Quality3DPlus {
			r.deliver(fix)
			return
		}
		if fix.Quality == QualityTimeOnly && fix.Millisecond == 0 {
			f := fix
			timeOnly = &f
		}
		if timeOnly != nil && time.Now().After(deadline) {
			r.deliver(*timeOnly)
			return
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		r.l.Error("gps: read %s: %v", r.port, err)
	}
}

func (r *SerialReceiver) deliver(fix Fix) {
	r.mu.Lock()
	fn := r.onLock
	r.mu.Unlock()
	r.l.Info("gps: %s lock at %s", fix.Quality, fix.DateTime())
	if fn != nil {
		fn(fix)
	}
}

// Close aborts any lock request in progress.
func (r *SerialReceiver) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}
