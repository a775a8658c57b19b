package typing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the phase of a typing job
type State int

const (
	Idle State = iota
	WaitingForModifierRelease
	PreWarning
	Typing
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForModifierRelease:
		return "waiting_for_modifier_release"
	case PreWarning:
		return "pre_warning"
	case Typing:
		return "typing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions follow s
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled
}

// Result summarizes a finished job
type Result struct {
	State     State
	Chars     int
	UnitsSent int
	DelayMs   int
	EnterSent bool
	Duration  time.Duration
	Err       error
}

// Job is one paste in flight. Only the engine goroutine running it mutates it.
type Job struct {
	ID int64

	text   []rune
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	state    State
	sent     int
	err      error
	started  time.Time
	finished time.Time
}

// Chars returns the number of characters after trimming
func (j *Job) Chars() int {
	return len(j.text)
}

// State returns the current phase
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Sent returns how many units have been sent so far
func (j *Job) Sent() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sent
}

// Cancel asks the job to stop at its next poll point
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed once the job reached Completed or Cancelled
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the job summary. It is only final after Done is closed.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	end := j.finished
	if end.IsZero() {
		end = time.Now()
	}
	var duration time.Duration
	if !j.started.IsZero() {
		duration = end.Sub(j.started)
	}
	return Result{
		State:     j.state,
		Chars:     len(j.text),
		UnitsSent: j.sent,
		DelayMs:   j.req.DelayMs,
		EnterSent: j.state == Completed && j.req.EnterEnabled,
		Duration:  duration,
		Err:       j.err,
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

func (j *Job) markStarted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = time.Now()
}

func (j *Job) addSent() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sent++
}

// complete records the terminal state once; later calls are ignored
func (j *Job) complete(s State, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = s
	j.err = err
	j.finished = time.Now()
	return true
}

func (j *Job) closeDone() {
	j.once.Do(func() { close(j.done) })
}
