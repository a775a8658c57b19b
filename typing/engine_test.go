package typing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/typetool/notify"
)

type fakeKeys struct {
	mu   sync.Mutex
	down map[int]bool
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{down: make(map[int]bool)}
}

func (k *fakeKeys) IsDown(vk int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.down[vk]
}

func (k *fakeKeys) set(vk int, down bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.down[vk] = down
}

type fakeKeyboard struct {
	mu     sync.Mutex
	units  []string
	times  []time.Time
	onSend func(n int)
	err    error
}

func (kb *fakeKeyboard) Send(keys string) error {
	kb.mu.Lock()
	if kb.err != nil {
		kb.mu.Unlock()
		return kb.err
	}
	kb.units = append(kb.units, keys)
	kb.times = append(kb.times, time.Now())
	n := len(kb.units)
	onSend := kb.onSend
	kb.mu.Unlock()

	if onSend != nil {
		onSend(n)
	}
	return nil
}

func (kb *fakeKeyboard) sent() []string {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return append([]string(nil), kb.units...)
}

type notification struct {
	title    string
	message  string
	severity notify.Severity
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notification
}

func (n *fakeNotifier) Notify(title, message string, severity notify.Severity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, notification{title, message, severity})
	return nil
}

func (n *fakeNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.msgs...)
}

func testTiming() Timing {
	return Timing{
		PollInterval:    time.Millisecond,
		ModifierTimeout: 30 * time.Millisecond,
		SettleDelay:     time.Millisecond,
		WarningPolls:    5,
		EnterDelay:      time.Millisecond,
	}
}

type harness struct {
	engine   *Engine
	keys     *fakeKeys
	keyboard *fakeKeyboard
	notifier *fakeNotifier

	mu     sync.Mutex
	events []Event
}

func newHarness() *harness {
	h := &harness{
		keys:     newFakeKeys(),
		keyboard: &fakeKeyboard{},
		notifier: &fakeNotifier{},
	}
	h.engine = NewEngine(Deps{
		Keys:     h.keys,
		Keyboard: h.keyboard,
		Notifier: h.notifier,
		Timing:   testTiming(),
	})
	h.engine.SetObserver(func(e Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	})
	return h
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	var states []State
	for _, e := range h.events {
		states = append(states, e.State)
	}
	return states
}

func (h *harness) run(t *testing.T, req Request) Result {
	t.Helper()
	job, err := h.engine.Start(context.Background(), req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := job.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestEndToEndExample(t *testing.T) {
	h := newHarness()

	res := h.run(t, Request{Text: "Hello (World)!", DelayMs: 1})

	assert.Equal(t, Completed, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t,
		[]string{"H", "e", "l", "l", "o", " ", "{(}", "W", "o", "r", "l", "d", "{)}", "!"},
		h.keyboard.sent())
	assert.Equal(t, 14, res.UnitsSent)
	assert.False(t, res.EnterSent)

	times := h.keyboard.times
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), time.Millisecond)
	}
	assert.Equal(t, []State{WaitingForModifierRelease, Typing, Completed}, h.states())
	assert.Equal(t, Idle, h.engine.State())
}

func TestPlainTextTypedVerbatim(t *testing.T) {
	for _, text := range []string{
		"a",
		"hello world",
		"line one\nline two",
		"Grüße, naïve café: done? no.",
		"tabs\tand\tspaces  inside",
		"emoji 😀 ok",
	} {
		require.False(t, strings.ContainsAny(text, escapeSet))
		t.Run(text, func(t *testing.T) {
			h := newHarness()
			res := h.run(t, Request{Text: text + " \n\t "})
			require.Equal(t, Completed, res.State)
			assert.Equal(t, text, strings.Join(h.keyboard.sent(), ""))
		})
	}
}

func TestUnitsEscapeSet(t *testing.T) {
	for _, r := range escapeSet {
		u, ok := Unit(r)
		require.True(t, ok)
		assert.Equal(t, "{"+string(r)+"}", u)
		assert.True(t, NeedsEscape(r))
	}
	for _, r := range "aZ09 !@#$&*-_=|\\;:'\",.<>/?`\n\tü" {
		u, ok := Unit(r)
		require.True(t, ok)
		assert.Equal(t, string(r), u, "rune %q", r)
		assert.False(t, NeedsEscape(r))
	}
}

func TestCarriageReturnsSkipped(t *testing.T) {
	assert.Equal(t, []string{"a", "\n", "b", "{+}", "c"}, Units("a\r\nb\r+c"))

	h := newHarness()
	res := h.run(t, Request{Text: "one\r\ntwo\r\n"})
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, "one\ntwo", strings.Join(h.keyboard.sent(), ""))
}

func TestEnterSentOnCompletion(t *testing.T) {
	h := newHarness()

	res := h.run(t, Request{Text: "hi", EnterEnabled: true})

	assert.Equal(t, Completed, res.State)
	assert.True(t, res.EnterSent)
	assert.Equal(t, []string{"h", "i", EnterKeys}, h.keyboard.sent())
}

func TestEmptyClipboard(t *testing.T) {
	for _, text := range []string{"", "   ", "\r\n\t"} {
		h := newHarness()

		job, err := h.engine.Start(context.Background(), Request{Text: text, ShowPreview: true})

		assert.Nil(t, job)
		assert.ErrorIs(t, err, ErrClipboardEmpty)
		assert.Equal(t, []notification{{"Error", "Clipboard is empty!", notify.Error}}, h.notifier.all())
		assert.Empty(t, h.states())
		assert.Equal(t, Idle, h.engine.State())
	}
}

func TestPreviewNotification(t *testing.T) {
	long := strings.Repeat("x", 75)
	exact := strings.Repeat("y", 60)
	below := strings.Repeat("z", WarningThreshold-1)

	tests := []struct {
		name    string
		text    string
		preview bool
		want    []notification
	}{
		{"short", "hello", true, []notification{{"Typing 5 characters", "hello", notify.Info}}},
		{"exactly 60", exact, true, []notification{{"Typing 60 characters", exact, notify.Info}}},
		{"truncated", long, true, []notification{{"Typing 75 characters", strings.Repeat("x", 60) + "...", notify.Info}}},
		{"just below warning", below, true, []notification{{"Typing 99 characters", strings.Repeat("z", 60) + "...", notify.Info}}},
		{"disabled", "hello", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			res := h.run(t, Request{Text: tt.text, ShowPreview: tt.preview})
			assert.Equal(t, Completed, res.State)
			assert.Equal(t, tt.want, h.notifier.all())
			assert.NotContains(t, h.states(), PreWarning)
		})
	}
}

func TestNotificationFailureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	kb := &fakeKeyboard{}
	engine := NewEngine(Deps{
		Keys:     newFakeKeys(),
		Keyboard: kb,
		Notifier: notify.Func(func(string, string, notify.Severity) error {
			return errors.New("no notification daemon")
		}),
		Timing: testTiming(),
	})

	job, err := engine.Start(context.Background(), Request{Text: "hi", ShowPreview: true})
	require.NoError(t, err)
	<-job.Done()

	assert.Equal(t, Completed, job.Result().State, "a failed preview does not stop typing")
	assert.Equal(t, []string{"h", "i"}, kb.sent())
	assert.Equal(t, 1, strings.Count(buf.String(), "no notification daemon"))
}

func TestLargeTextGoesThroughPreWarning(t *testing.T) {
	h := newHarness()
	text := strings.Repeat("a", WarningThreshold)

	var sentAtWarning = -1
	h.engine.SetObserver(func(e Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
		if e.State == PreWarning {
			sentAtWarning = len(h.keyboard.sent())
		}
	})

	res := h.run(t, Request{Text: text, ShowPreview: true})

	assert.Equal(t, Completed, res.State)
	assert.Equal(t, 0, sentAtWarning)
	assert.Equal(t, []State{WaitingForModifierRelease, PreWarning, Typing, Completed}, h.states())

	msgs := h.notifier.all()
	require.Len(t, msgs, 1, "no preview for large pastes")
	assert.Equal(t, notify.Warning, msgs[0].severity)
	assert.Equal(t, "WARNING: Large text", msgs[0].title)
	assert.Contains(t, msgs[0].message, "100 characters will be typed")
	assert.Contains(t, msgs[0].message, "ESC")
}

func TestEscapeDuringPreWarning(t *testing.T) {
	h := newHarness()
	h.engine.SetObserver(func(e Event) {
		if e.State == PreWarning {
			h.keys.set(vkEscape, true)
		}
	})

	res := h.run(t, Request{Text: strings.Repeat("b", 150), EnterEnabled: true})

	assert.Equal(t, Cancelled, res.State)
	assert.ErrorIs(t, res.Err, ErrCancelled)
	assert.Empty(t, h.keyboard.sent())
	assert.False(t, res.EnterSent)
}

func TestEscapeDuringTyping(t *testing.T) {
	h := newHarness()
	h.keyboard.onSend = func(n int) {
		if n == 3 {
			h.keys.set(vkEscape, true)
		}
	}

	res := h.run(t, Request{Text: "abcdefgh", EnterEnabled: true})

	assert.Equal(t, Cancelled, res.State)
	assert.Equal(t, []string{"a", "b", "c"}, h.keyboard.sent())
	assert.Equal(t, 3, res.UnitsSent)
	assert.False(t, res.EnterSent)
}

func TestExplicitCancel(t *testing.T) {
	h := newHarness()
	h.keyboard.onSend = func(n int) {
		if n == 2 {
			assert.True(t, h.engine.Cancel())
		}
	}

	res := h.run(t, Request{Text: "abcdefgh", DelayMs: 1, EnterEnabled: true})

	assert.Equal(t, Cancelled, res.State)
	assert.Equal(t, []string{"a", "b"}, h.keyboard.sent())
	assert.False(t, h.engine.Cancel(), "nothing left to cancel")
}

func TestCancelInterruptsLongDelay(t *testing.T) {
	h := newHarness()
	job, err := h.engine.Start(context.Background(), Request{Text: "abc", DelayMs: 60_000})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.keyboard.sent()) == 1 }, time.Second, time.Millisecond)
	job.Cancel()

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not stop while sleeping")
	}
	assert.Equal(t, Cancelled, job.Result().State)
}

func TestSecondStartRejectedWhileActive(t *testing.T) {
	h := newHarness()

	first, err := h.engine.Start(context.Background(), Request{Text: "abcdef", DelayMs: 60_000})
	require.NoError(t, err)

	second, err := h.engine.Start(context.Background(), Request{Text: "zzz", ShowPreview: true})
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, h.notifier.all(), "a rejected start has no side effects")

	first.Cancel()
	<-first.Done()

	third, err := h.engine.Start(context.Background(), Request{Text: "ok"})
	require.NoError(t, err)
	<-third.Done()
	assert.Equal(t, Completed, third.Result().State)
	assert.NotContains(t, h.keyboard.sent(), "z")
}

func TestModifierStuckAbortsSilently(t *testing.T) {
	h := newHarness()
	h.keys.set(vkControl, true)

	res := h.run(t, Request{Text: "never typed", EnterEnabled: true})

	assert.Equal(t, Cancelled, res.State)
	assert.ErrorIs(t, res.Err, ErrModifierStuck)
	assert.Empty(t, h.keyboard.sent())
	assert.Empty(t, h.notifier.all())
}

func TestWaitForModifierRelease(t *testing.T) {
	timing := testTiming()

	t.Run("never held", func(t *testing.T) {
		assert.NoError(t, WaitForModifierRelease(context.Background(), newFakeKeys(), timing))
	})

	t.Run("held for the whole window", func(t *testing.T) {
		keys := newFakeKeys()
		keys.set(vkControl, true)

		start := time.Now()
		err := WaitForModifierRelease(context.Background(), keys, timing)
		assert.ErrorIs(t, err, ErrModifierStuck)
		assert.GreaterOrEqual(t, time.Since(start), timing.ModifierTimeout)
	})

	t.Run("released in time", func(t *testing.T) {
		keys := newFakeKeys()
		keys.set(vkControl, true)
		go func() {
			time.Sleep(5 * time.Millisecond)
			keys.set(vkControl, false)
		}()

		start := time.Now()
		require.NoError(t, WaitForModifierRelease(context.Background(), keys, timing))
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond+timing.SettleDelay)
	})

	t.Run("cancelled", func(t *testing.T) {
		keys := newFakeKeys()
		keys.set(vkControl, true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, WaitForModifierRelease(ctx, keys, timing), ErrCancelled)
	})
}

func TestSendFailureEndsJob(t *testing.T) {
	h := newHarness()
	h.keyboard.err = errors.New("SendInput failed")

	res := h.run(t, Request{Text: "abc", EnterEnabled: true})

	assert.Equal(t, Cancelled, res.State)
	assert.Error(t, res.Err)
	assert.Equal(t, 0, res.UnitsSent)
	assert.Equal(t, Idle, h.engine.State())
}

func TestRequestSnapshot(t *testing.T) {
	h := newHarness()
	req := Request{Text: "abc", EnterEnabled: false}

	job, err := h.engine.Start(context.Background(), req)
	require.NoError(t, err)
	req.EnterEnabled = true
	req.Text = "changed"
	<-job.Done()

	assert.Equal(t, []string{"a", "b", "c"}, h.keyboard.sent())
}

func TestPrepareAndPreview(t *testing.T) {
	assert.Equal(t, []rune("abc"), Prepare("abc \t\r\n"))
	assert.Equal(t, []rune("  lead"), Prepare("  lead"))
	assert.Equal(t, "abc", Preview([]rune("abc"), 60))
	assert.Equal(t, "ab...", Preview([]rune("abcdef"), 2))
	assert.Equal(t, "äö...", Preview([]rune("äöü"), 2))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pre_warning", PreWarning.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.True(t, Completed.Terminal())
	assert.False(t, Typing.Terminal())
}
