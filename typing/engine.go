package typing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"markestedt/typetool/notify"
	"markestedt/typetool/platform"
)

var (
	ErrClipboardEmpty = errors.New("clipboard is empty")
	ErrModifierStuck  = errors.New("ctrl still held")
	ErrCancelled      = errors.New("cancelled by user")
	ErrBusy           = errors.New("a typing job is already running")
)

const (
	// WarningThreshold is the length from which a paste is announced and
	// can be cancelled before the first character goes out.
	WarningThreshold = 100

	// PreviewLength is how much of a short paste the preview shows
	PreviewLength = 60

	vkControl = 0x11
	vkEscape  = 0x1B
)

// Timing holds the fixed waits of a job
type Timing struct {
	PollInterval    time.Duration
	ModifierTimeout time.Duration
	SettleDelay     time.Duration
	WarningPolls    int
	EnterDelay      time.Duration
}

// DefaultTiming returns the production timings
func DefaultTiming() Timing {
	return Timing{
		PollInterval:    50 * time.Millisecond,
		ModifierTimeout: 3000 * time.Millisecond,
		SettleDelay:     100 * time.Millisecond,
		WarningPolls:    30,
		EnterDelay:      50 * time.Millisecond,
	}
}

// Deps are the collaborators of an Engine
type Deps struct {
	Keys     platform.KeyState
	Keyboard platform.Keyboard
	Notifier notify.Notifier
	Timing   Timing
}

// Request describes one paste. All fields are copied when the job starts.
type Request struct {
	Text         string
	DelayMs      int
	EnterEnabled bool
	ShowPreview  bool
}

// Event reports a job state change to the observer
type Event struct {
	JobID     int64
	State     State
	Chars     int
	UnitsSent int
	Err       error
}

// Engine types text into the focused window, one job at a time
type Engine struct {
	deps Deps

	mu       sync.Mutex
	active   *Job
	nextID   int64
	observer func(Event)
}

// NewEngine creates a typing engine
func NewEngine(deps Deps) *Engine {
	if deps.Timing == (Timing{}) {
		deps.Timing = DefaultTiming()
	}
	return &Engine{deps: deps}
}

// SetObserver registers fn to receive every job state change. fn runs on
// the job goroutine.
func (e *Engine) SetObserver(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = fn
}

// Active returns the running job or nil
func (e *Engine) Active() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// State returns the state of the running job, or Idle
func (e *Engine) State() State {
	if job := e.Active(); job != nil {
		return job.State()
	}
	return Idle
}

// Cancel stops the running job at its next poll point. It reports whether
// there was a job to cancel.
func (e *Engine) Cancel() bool {
	job := e.Active()
	if job == nil {
		return false
	}
	job.Cancel()
	return true
}

// Start snapshots req and types it on a new goroutine. It returns ErrBusy
// while another job is running and ErrClipboardEmpty when there is nothing
// to type; neither starts a job.
func (e *Engine) Start(ctx context.Context, req Request) (*Job, error) {
	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return nil, ErrBusy
	}

	text := Prepare(req.Text)
	if len(text) == 0 {
		e.mu.Unlock()
		e.notify("Error", "Clipboard is empty!", notify.Error)
		return nil, ErrClipboardEmpty
	}

	if req.DelayMs < 0 {
		req.DelayMs = 0
	}

	e.nextID++
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:     e.nextID,
		text:   text,
		req:    req,
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  Idle,
	}
	e.active = job
	e.mu.Unlock()

	if len(text) < WarningThreshold && req.ShowPreview {
		e.notify(fmt.Sprintf("Typing %d characters", len(text)), Preview(text, PreviewLength), notify.Info)
	}

	go e.run(job)
	return job, nil
}

func (e *Engine) run(job *Job) {
	job.markStarted()
	defer job.cancel()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("typing panicked: %v", r)
			slog.Error("Typing job failed", "job", job.ID, "error", err)
			e.finish(job, Cancelled, err)
		}
	}()

	e.transition(job, WaitingForModifierRelease)
	if err = WaitForModifierRelease(job.ctx, e.deps.Keys, e.deps.Timing); err != nil {
		if errors.Is(err, ErrModifierStuck) {
			slog.Warn("Ctrl still held, typing aborted", "job", job.ID)
		}
		e.finish(job, Cancelled, err)
		return
	}

	if len(job.text) >= WarningThreshold {
		e.transition(job, PreWarning)
		if err = e.preWarning(job); err != nil {
			e.finish(job, Cancelled, err)
			return
		}
	}

	e.transition(job, Typing)
	if err = e.typeText(job); err != nil {
		e.finish(job, Cancelled, err)
		return
	}

	if job.req.EnterEnabled {
		if err = sleep(job.ctx, e.deps.Timing.EnterDelay); err != nil {
			e.finish(job, Cancelled, ErrCancelled)
			return
		}
		if err = e.deps.Keyboard.Send(EnterKeys); err != nil {
			slog.Error("Failed to send Enter", "job", job.ID, "error", err)
			e.finish(job, Cancelled, fmt.Errorf("failed to send enter: %w", err))
			return
		}
	}

	e.finish(job, Completed, nil)
}

func (e *Engine) preWarning(job *Job) error {
	t := e.deps.Timing
	wait := time.Duration(t.WarningPolls) * t.PollInterval
	e.notify("WARNING: Large text",
		fmt.Sprintf("%d characters will be typed.\nPress ESC to cancel (starting in %.1fs)", len(job.text), wait.Seconds()),
		notify.Warning)

	for i := 0; i < t.WarningPolls; i++ {
		if e.cancelled(job) {
			return ErrCancelled
		}
		if err := sleep(job.ctx, t.PollInterval); err != nil {
			return ErrCancelled
		}
	}
	return nil
}

func (e *Engine) typeText(job *Job) error {
	delay := time.Duration(job.req.DelayMs) * time.Millisecond

	for _, r := range job.text {
		if e.cancelled(job) {
			return ErrCancelled
		}

		unit, ok := Unit(r)
		if !ok {
			continue
		}
		if err := e.deps.Keyboard.Send(unit); err != nil {
			slog.Error("Failed to send keystroke", "job", job.ID, "unit", unit, "error", err)
			return fmt.Errorf("failed to send %q: %w", unit, err)
		}
		job.addSent()

		if err := sleep(job.ctx, delay); err != nil {
			return ErrCancelled
		}
	}
	return nil
}

// cancelled polls both the explicit cancel signal and the Escape key
func (e *Engine) cancelled(job *Job) bool {
	if job.ctx.Err() != nil {
		return true
	}
	if e.deps.Keys != nil && e.deps.Keys.IsDown(vkEscape) {
		slog.Info("Escape pressed, cancelling", "job", job.ID)
		job.cancel()
		return true
	}
	return false
}

func (e *Engine) transition(job *Job, state State) {
	job.setState(state)
	slog.Debug("Typing state", "job", job.ID, "state", state)
	e.emit(job, nil)
}

func (e *Engine) finish(job *Job, state State, err error) {
	if !job.complete(state, err) {
		return
	}
	defer job.closeDone()

	e.mu.Lock()
	if e.active == job {
		e.active = nil
	}
	e.mu.Unlock()

	res := job.Result()
	slog.Info("Typing finished", "job", job.ID, "state", state, "chars", len(job.text),
		"sent", res.UnitsSent, "duration", res.Duration, "error", err)
	e.emit(job, err)
}

func (e *Engine) emit(job *Job, err error) {
	e.mu.Lock()
	fn := e.observer
	e.mu.Unlock()
	if fn == nil {
		return
	}
	fn(Event{
		JobID:     job.ID,
		State:     job.State(),
		Chars:     len(job.text),
		UnitsSent: job.Sent(),
		Err:       err,
	})
}

func (e *Engine) notify(title, message string, severity notify.Severity) {
	if e.deps.Notifier == nil {
		return
	}
	if err := e.deps.Notifier.Notify(title, message, severity); err != nil {
		slog.Warn("Notification failed", "title", title, "error", err)
	}
}

// WaitForModifierRelease polls Ctrl until it is released, then waits the
// settle delay. It returns ErrModifierStuck when Ctrl is still held after
// the timeout.
func WaitForModifierRelease(ctx context.Context, keys platform.KeyState, t Timing) error {
	var waited time.Duration
	for keys != nil && keys.IsDown(vkControl) {
		if waited >= t.ModifierTimeout {
			return ErrModifierStuck
		}
		if err := sleep(ctx, t.PollInterval); err != nil {
			return ErrCancelled
		}
		waited += t.PollInterval
	}
	if err := sleep(ctx, t.SettleDelay); err != nil {
		return ErrCancelled
	}
	return nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
