// Package app wires hotkeys, the typing engine and hotkey capture into the
// running tray application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"markestedt/typetool/config"
	"markestedt/typetool/hotkey"
	"markestedt/typetool/notify"
	"markestedt/typetool/platform"
	"markestedt/typetool/rebind"
	"markestedt/typetool/storage"
	"markestedt/typetool/typing"
)

// CaptureTimeout ends a hotkey capture nobody completed
const CaptureTimeout = 15 * time.Second

const (
	msgCaptureUnsupported = "Changing hotkeys is not supported here. Edit the config file instead."
	msgSaveFailed         = "Settings could not be saved and will be lost on exit."
)

// Broadcaster receives job and status updates for the dashboard
type Broadcaster interface {
	BroadcastJob(id int64, state string, unitsSent int)
	BroadcastStatus(status string)
	URL() string
}

// CuePlayer plays the end-of-job sound
type CuePlayer interface {
	PlayCompleted()
	PlayCancelled()
}

// TrayView mirrors settings in the tray menu
type TrayView interface {
	SetEnter(on bool)
	SetPreview(on bool)
	SetHotkey(hotkey string)
}

// Deps are the collaborators of an App. DB, Web, Player and the dialog
// functions are optional.
type Deps struct {
	Store     *config.Store
	Sink      platform.HotkeySink
	Hook      platform.KeyHook
	Keys      platform.KeyState
	Keyboard  platform.Keyboard
	Clipboard platform.Clipboard
	Notifier  notify.Notifier

	DB     *storage.DB
	Web    Broadcaster
	Player CuePlayer

	ConfirmHotkey func(what string, hb config.HotkeyBinding) bool
	AskDelay      func(current int) (int, bool, error)

	Timing         typing.Timing
	CaptureTimeout time.Duration
}

// App dispatches hotkeys and tray actions
type App struct {
	deps     Deps
	store    *config.Store
	registry *hotkey.Registry
	engine   *typing.Engine
	capture  *rebind.Capture

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	tray         TrayView
	unhook       func()
	captureTimer *time.Timer
}

// New creates the application. Call Registry().Dispatch from the hotkey
// event loop and RegisterHotkeys once the loop runs.
func New(deps Deps) *App {
	if deps.CaptureTimeout == 0 {
		deps.CaptureTimeout = CaptureTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		deps:     deps,
		store:    deps.Store,
		registry: hotkey.NewRegistry(deps.Sink),
		engine: typing.NewEngine(typing.Deps{
			Keys:     deps.Keys,
			Keyboard: deps.Keyboard,
			Notifier: deps.Notifier,
			Timing:   deps.Timing,
		}),
		capture: rebind.New(),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.registry.Handle(config.HotkeyIDType, a.onTypeHotkey)
	a.registry.Handle(config.HotkeyIDToggleEnter, a.onToggleEnterHotkey)
	a.capture.OnListen(a.onCaptureListen)
	a.capture.OnCapture(a.onCaptured)
	a.engine.SetObserver(a.onJobEvent)

	return a
}

// Registry returns the hotkey registry fed by the event loop
func (a *App) Registry() *hotkey.Registry {
	return a.registry
}

// Engine returns the typing engine
func (a *App) Engine() *typing.Engine {
	return a.engine
}

// SetTray attaches the tray menu
func (a *App) SetTray(t TrayView) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tray = t
}

// Status returns the engine state for the dashboard
func (a *App) Status() string {
	return a.engine.State().String()
}

// RegisterHotkeys registers both bindings of the current config. Denied
// chords are reported to the user and returned together.
func (a *App) RegisterHotkeys() error {
	cfg := a.store.Snapshot()

	var errs []error
	for _, slot := range []rebind.Slot{rebind.TypingSlot, rebind.EnterSlot} {
		if err := a.registerSlot(cfg, slot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) registerSlot(cfg config.Config, slot rebind.Slot) error {
	id := slot.HotkeyID()
	hb, _ := cfg.Binding(id)

	if err := a.registry.Register(id, hb); err != nil {
		a.notify("Error", fmt.Sprintf("Could not register %s for the %s. Is it used by another program?", hb, slot), notify.Error)
		return err
	}
	return nil
}

// Close cancels the running job, ends any capture and unregisters the
// hotkeys.
func (a *App) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.endCapture()
	a.jobs.Wait()

	for _, id := range []int{config.HotkeyIDType, config.HotkeyIDToggleEnter} {
		if err := a.registry.Unregister(id); err != nil {
			slog.Warn("Failed to unregister hotkey", "id", id, "error", err)
		}
	}
}

// onTypeHotkey runs on the event loop and hands the job off
func (a *App) onTypeHotkey() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.jobs.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.jobs.Done()
		a.TypeClipboard()
	}()
}

// TypeClipboard types the clipboard text and waits for the job to end
func (a *App) TypeClipboard() {
	if a.ctx.Err() != nil {
		return
	}
	cfg := a.store.Snapshot()

	text, err := a.readClipboard()
	if err != nil {
		slog.Warn("Failed to read clipboard", "error", err)
	}

	job, err := a.engine.Start(a.ctx, typing.Request{
		Text:         text,
		DelayMs:      cfg.TypingDelayMs,
		EnterEnabled: cfg.EnterKeyEnabled,
		ShowPreview:  cfg.ShowPreview,
	})
	switch {
	case errors.Is(err, typing.ErrBusy):
		slog.Debug("Typing hotkey ignored, job already running")
		return
	case err != nil:
		return
	}

	<-job.Done()
	a.jobFinished(job.ID, job.Result(), cfg)
}

func (a *App) readClipboard() (string, error) {
	if a.deps.Clipboard == nil || !a.deps.Clipboard.ContainsText() {
		return "", nil
	}
	return a.deps.Clipboard.GetText()
}

func (a *App) jobFinished(id int64, res typing.Result, cfg config.Config) {
	if a.deps.Player != nil && cfg.Sound.Enabled {
		switch {
		case res.State == typing.Completed:
			a.deps.Player.PlayCompleted()
		case errors.Is(res.Err, typing.ErrCancelled):
			a.deps.Player.PlayCancelled()
		}
	}

	if a.deps.DB == nil || !cfg.History.Enabled {
		return
	}
	rec := &storage.JobRecord{
		State:          res.State.String(),
		CharacterCount: res.Chars,
		UnitsSent:      res.UnitsSent,
		DelayMs:        res.DelayMs,
		EnterSent:      res.EnterSent,
		DurationMs:     res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.ErrorMessage = res.Err.Error()
	}
	if err := a.deps.DB.SaveJob(rec); err != nil {
		slog.Error("Failed to save job", "job", id, "error", err)
	}
}

func (a *App) onJobEvent(e typing.Event) {
	if a.deps.Web == nil {
		return
	}
	a.deps.Web.BroadcastJob(e.JobID, e.State.String(), e.UnitsSent)
	if e.State.Terminal() {
		a.deps.Web.BroadcastStatus(typing.Idle.String())
	}
}

// onToggleEnterHotkey flips Enter-at-end on the event loop
func (a *App) onToggleEnterHotkey() {
	on := a.ToggleEnter()
	go a.notify("Setting changed", "Enter at end: "+onOff(on), notify.Info)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// ToggleEnter flips Enter-at-end and returns the new value. The change
// applies even when the config file cannot be written.
func (a *App) ToggleEnter() bool {
	cfg, err := a.store.Set(func(c *config.Config) { c.EnterKeyEnabled = !c.EnterKeyEnabled })
	a.saveFailed(err)
	a.withTray(func(t TrayView) { t.SetEnter(cfg.EnterKeyEnabled) })
	slog.Info("Enter at end", "enabled", cfg.EnterKeyEnabled)
	return cfg.EnterKeyEnabled
}

// TogglePreview flips the preview notification and returns the new value
func (a *App) TogglePreview() bool {
	cfg, err := a.store.Set(func(c *config.Config) { c.ShowPreview = !c.ShowPreview })
	a.saveFailed(err)
	a.withTray(func(t TrayView) { t.SetPreview(cfg.ShowPreview) })
	return cfg.ShowPreview
}

// CancelTyping stops the running job
func (a *App) CancelTyping() bool {
	return a.engine.Cancel()
}

// ReloadHotkeys registers both hotkeys again
func (a *App) ReloadHotkeys() {
	if err := a.RegisterHotkeys(); err == nil {
		a.notify("Info", "Hotkeys reloaded", notify.Info)
	}
}

// ChangeSpeed asks for a new delay per character
func (a *App) ChangeSpeed() {
	if a.deps.AskDelay == nil {
		return
	}
	current := a.store.Snapshot().TypingDelayMs
	delay, ok, err := a.deps.AskDelay(current)
	if err != nil {
		slog.Warn("Invalid speed", "error", err)
		a.notify("Error", err.Error(), notify.Error)
		return
	}
	if !ok || delay == current {
		return
	}
	_, err = a.store.Set(func(c *config.Config) { c.TypingDelayMs = delay })
	a.saveFailed(err)
	slog.Info("Typing delay changed", "delay_ms", delay)
}

// saveFailed reports a config file that could not be written. Callers may
// run on the event loop, so the notification is sent from a goroutine.
func (a *App) saveFailed(err error) {
	if err == nil {
		return
	}
	slog.Error("Failed to save config", "error", err)
	go a.notify("Error", msgSaveFailed, notify.Error)
}

// DashboardURL returns the dashboard address, or "" when it is disabled
func (a *App) DashboardURL() string {
	if a.deps.Web == nil {
		return ""
	}
	return a.deps.Web.URL()
}

// ChangeHotkey starts capturing a new chord for slot
func (a *App) ChangeHotkey(slot rebind.Slot) {
	a.mu.Lock()
	hooked := a.unhook != nil
	a.mu.Unlock()

	if !hooked {
		if a.deps.Hook == nil {
			a.notify("Error", msgCaptureUnsupported, notify.Error)
			return
		}
		unhook, err := a.deps.Hook.Hook(a.capture.OnKeyDown)
		if err != nil {
			slog.Error("Failed to install keyboard hook", "error", err)
			a.notify("Error", msgCaptureUnsupported, notify.Error)
			return
		}
		a.mu.Lock()
		a.unhook = unhook
		a.mu.Unlock()
	}

	a.capture.BeginListening(slot)

	a.mu.Lock()
	if a.captureTimer != nil {
		a.captureTimer.Stop()
	}
	a.captureTimer = time.AfterFunc(a.deps.CaptureTimeout, a.abandonCapture)
	a.mu.Unlock()
}

func (a *App) onCaptureListen(slot rebind.Slot) {
	go a.notify("Change hotkey", fmt.Sprintf("Press the new key combination for the %s", slot), notify.Info)
}

// onCaptured runs inside the keyboard hook; the dialog runs elsewhere
func (a *App) onCaptured(slot rebind.Slot, hb config.HotkeyBinding) {
	go func() {
		a.endCapture()
		a.confirmCapture(slot, hb)
	}()
}

func (a *App) confirmCapture(slot rebind.Slot, hb config.HotkeyBinding) {
	if a.deps.ConfirmHotkey != nil && !a.deps.ConfirmHotkey(slot.String(), hb) {
		slog.Info("Hotkey change discarded", "slot", slot, "hotkey", hb.String())
		a.capture.Discard()
		return
	}

	cfg, changed, err := a.capture.Commit(a.store)
	if err != nil {
		slog.Error("Failed to save hotkeys", "error", err)
		a.capture.Discard()
		a.notify("Error", fmt.Sprintf("Could not save %s: %v", hb, err), notify.Error)
		return
	}

	var failed bool
	for _, s := range changed {
		if err := a.registerSlot(cfg, s); err != nil {
			failed = true
		}
	}

	a.withTray(func(t TrayView) { t.SetHotkey(cfg.TypingHotkey.String()) })
	if !failed {
		a.notify("Info", "Hotkeys saved successfully!", notify.Info)
	}
}

func (a *App) abandonCapture() {
	if _, listening := a.capture.Listening(); !listening {
		return
	}
	slog.Info("Hotkey capture timed out")
	a.capture.Discard()
	a.endCapture()
}

// endCapture removes the keyboard hook and the timeout
func (a *App) endCapture() {
	a.mu.Lock()
	unhook := a.unhook
	a.unhook = nil
	if a.captureTimer != nil {
		a.captureTimer.Stop()
		a.captureTimer = nil
	}
	a.mu.Unlock()

	if unhook != nil {
		unhook()
	}
}

// ApplyConfig reacts to a config saved outside the tray menu
func (a *App) ApplyConfig(old, cur config.Config) {
	if !old.TypingHotkey.SameChord(cur.TypingHotkey) {
		a.registerSlot(cur, rebind.TypingSlot)
	}
	if !old.EnterToggleHotkey.SameChord(cur.EnterToggleHotkey) {
		a.registerSlot(cur, rebind.EnterSlot)
	}
	a.withTray(func(t TrayView) {
		t.SetEnter(cur.EnterKeyEnabled)
		t.SetPreview(cur.ShowPreview)
		t.SetHotkey(cur.TypingHotkey.String())
	})
}

func (a *App) withTray(fn func(TrayView)) {
	a.mu.Lock()
	t := a.tray
	a.mu.Unlock()
	if t != nil {
		fn(t)
	}
}

func (a *App) notify(title, message string, severity notify.Severity) {
	if a.deps.Notifier == nil {
		return
	}
	if err := a.deps.Notifier.Notify(title, message, severity); err != nil {
		slog.Warn("Notification failed", "title", title, "error", err)
	}
}
