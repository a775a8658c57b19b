package app

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/typetool/config"
	"markestedt/typetool/hotkey"
	"markestedt/typetool/notify"
	"markestedt/typetool/platform"
	"markestedt/typetool/rebind"
	"markestedt/typetool/storage"
	"markestedt/typetool/typing"
)

type chord struct{ mods, vk uint32 }

type fakeSink struct {
	mu     sync.Mutex
	byID   map[int]chord
	denied map[chord]bool
}

func (s *fakeSink) Register(id int, mods, vk uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied[chord{mods, vk}] {
		return errors.New("hotkey already registered")
	}
	s.byID[id] = chord{mods, vk}
	return nil
}

func (s *fakeSink) Unregister(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *fakeSink) get(id int) (chord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	return c, ok
}

type fakeHook struct {
	mu       sync.Mutex
	handler  platform.KeyHandler
	installs int
	err      error
}

func (h *fakeHook) Hook(fn platform.KeyHandler) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	h.handler = fn
	h.installs++
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.handler = nil
	}, nil
}

func (h *fakeHook) press(ev platform.KeyEvent) bool {
	h.mu.Lock()
	fn := h.handler
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn(ev)
}

func (h *fakeHook) hooked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler != nil
}

type noKeys struct{}

func (noKeys) IsDown(int) bool { return false }

type fakeKeyboard struct {
	mu    sync.Mutex
	units []string
	block chan struct{}
}

func (k *fakeKeyboard) Send(keys string) error {
	if k.block != nil {
		<-k.block
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.units = append(k.units, keys)
	return nil
}

func (k *fakeKeyboard) typed() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var s string
	for _, u := range k.units {
		s += u
	}
	return s
}

type fakeClipboard struct{ text string }

func (c fakeClipboard) ContainsText() bool       { return c.text != "" }
func (c fakeClipboard) GetText() (string, error) { return c.text, nil }

type message struct {
	title, text string
	severity    notify.Severity
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []message
}

func (n *fakeNotifier) Notify(title, text string, severity notify.Severity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message{title, text, severity})
	return nil
}

func (n *fakeNotifier) has(title, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if m.title == title && (text == "" || m.text == text) {
			return true
		}
	}
	return false
}

type fakeTray struct {
	mu     sync.Mutex
	enter  bool
	hotkey string
}

func (t *fakeTray) SetEnter(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enter = on
}

func (t *fakeTray) SetPreview(bool) {}

func (t *fakeTray) SetHotkey(hotkey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hotkey = hotkey
}

type fakePlayer struct {
	mu        sync.Mutex
	completed int
	cancelled int
}

func (p *fakePlayer) PlayCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

func (p *fakePlayer) PlayCancelled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled++
}

type env struct {
	app      *App
	store    *config.Store
	sink     *fakeSink
	hook     *fakeHook
	keyboard *fakeKeyboard
	notifier *fakeNotifier
	tray     *fakeTray
	player   *fakePlayer
	db       *storage.DB
	confirm  chan bool
	cfgPath  string
}

func newEnv(t *testing.T, clipboard string, mutate func(*Deps)) *env {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Sound.Enabled = true
	store := config.NewStore(cfg, filepath.Join(dir, "config.toml"))

	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		store:    store,
		sink:     &fakeSink{byID: map[int]chord{}, denied: map[chord]bool{}},
		hook:     &fakeHook{},
		keyboard: &fakeKeyboard{},
		notifier: &fakeNotifier{},
		tray:     &fakeTray{},
		player:   &fakePlayer{},
		db:       db,
		confirm:  make(chan bool, 1),
		cfgPath:  filepath.Join(dir, "config.toml"),
	}

	deps := Deps{
		Store:     store,
		Sink:      e.sink,
		Hook:      e.hook,
		Keys:      noKeys{},
		Keyboard:  e.keyboard,
		Clipboard: fakeClipboard{clipboard},
		Notifier:  e.notifier,
		DB:        db,
		Player:    e.player,
		ConfirmHotkey: func(string, config.HotkeyBinding) bool {
			return <-e.confirm
		},
		Timing: typing.Timing{
			PollInterval:    time.Millisecond,
			ModifierTimeout: 10 * time.Millisecond,
			SettleDelay:     time.Millisecond,
			WarningPolls:    2,
			EnterDelay:      time.Millisecond,
		},
	}
	if mutate != nil {
		mutate(&deps)
	}

	e.app = New(deps)
	e.app.SetTray(e.tray)
	t.Cleanup(e.app.Close)
	return e
}

func TestTypeHotkeyTypesClipboard(t *testing.T) {
	e := newEnv(t, "Hello (World)!\r\n", nil)
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.Registry().Dispatch(config.HotkeyIDType)

	require.Eventually(t, func() bool {
		n, _ := e.db.GetJobCount()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "Hello {(}World{)}!", e.keyboard.typed())

	jobs, err := e.db.GetJobs(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "completed", jobs[0].State)
	assert.Equal(t, 14, jobs[0].CharacterCount)
	assert.Equal(t, 14, jobs[0].UnitsSent)
	assert.False(t, jobs[0].EnterSent)

	e.player.mu.Lock()
	assert.Equal(t, 1, e.player.completed)
	e.player.mu.Unlock()
	assert.True(t, e.notifier.has("Typing 14 characters", "Hello (World)!"))
}

func TestEmptyClipboardNotifies(t *testing.T) {
	e := newEnv(t, "", nil)

	e.app.TypeClipboard()

	assert.True(t, e.notifier.has("Error", "Clipboard is empty!"))
	assert.Empty(t, e.keyboard.typed())
	n, err := e.db.GetJobCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSecondHotkeyIgnoredWhileTyping(t *testing.T) {
	block := make(chan struct{})
	e := newEnv(t, "abc", nil)
	e.keyboard.block = block
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.Registry().Dispatch(config.HotkeyIDType)
	require.Eventually(t, func() bool { return e.app.Engine().Active() != nil }, time.Second, time.Millisecond)

	// rejected without side effects
	e.app.TypeClipboard()

	close(block)
	require.Eventually(t, func() bool {
		n, _ := e.db.GetJobCount()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc", e.keyboard.typed())
}

func TestToggleEnterHotkey(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.Registry().Dispatch(config.HotkeyIDToggleEnter)

	assert.True(t, e.store.Snapshot().EnterKeyEnabled)
	e.tray.mu.Lock()
	assert.True(t, e.tray.enter)
	e.tray.mu.Unlock()
	require.Eventually(t, func() bool {
		return e.notifier.has("Setting changed", "Enter at end: ON")
	}, time.Second, time.Millisecond)

	assert.False(t, e.app.ToggleEnter())
	assert.False(t, e.store.Snapshot().EnterKeyEnabled)
}

func TestEnterAtEndUsesSnapshot(t *testing.T) {
	e := newEnv(t, "ok", nil)
	e.app.ToggleEnter()

	e.app.TypeClipboard()

	assert.Equal(t, "ok"+typing.EnterKeys, e.keyboard.typed())
}

func TestRegisterDeniedNotifies(t *testing.T) {
	e := newEnv(t, "", nil)
	e.sink.denied[chord{uint32(config.ModCtrl), 'B'}] = true

	err := e.app.RegisterHotkeys()

	require.ErrorIs(t, err, hotkey.ErrRegistrationDenied)
	assert.True(t, e.notifier.has("Error", ""))
	_, ok := e.sink.get(config.HotkeyIDToggleEnter)
	assert.True(t, ok, "the other hotkey is still registered")
}

func TestRebindCommit(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.ChangeHotkey(rebind.TypingSlot)
	require.True(t, e.hook.hooked())

	assert.False(t, e.hook.press(platform.KeyEvent{VK: config.VKControl, Ctrl: true}), "bare modifier passes through")
	assert.True(t, e.hook.press(platform.KeyEvent{VK: 'K', Ctrl: true, Alt: true}))
	e.confirm <- true

	want := config.HotkeyBinding{Modifiers: 3, KeyCode: 'K'}
	require.Eventually(t, func() bool {
		return e.notifier.has("Info", "Hotkeys saved successfully!")
	}, time.Second, time.Millisecond)

	assert.Equal(t, want, e.store.Snapshot().TypingHotkey)
	c, ok := e.sink.get(config.HotkeyIDType)
	require.True(t, ok)
	assert.Equal(t, chord{3, 'K'}, c)
	assert.False(t, e.hook.hooked(), "hook removed after capture")

	e.tray.mu.Lock()
	assert.Equal(t, "Ctrl + Alt + K", e.tray.hotkey)
	e.tray.mu.Unlock()

	reloaded, err := config.LoadFile(e.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, want, reloaded.TypingHotkey)
}

func TestRebindDiscard(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.ChangeHotkey(rebind.EnterSlot)
	assert.True(t, e.hook.press(platform.KeyEvent{VK: 'J', Shift: true}))
	e.confirm <- false

	require.Eventually(t, func() bool { return !e.hook.hooked() }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, config.Default().EnterToggleHotkey, e.store.Snapshot().EnterToggleHotkey)
	c, _ := e.sink.get(config.HotkeyIDToggleEnter)
	assert.Equal(t, chord{uint32(config.ModCtrl | config.ModAlt), 'B'}, c)
	assert.False(t, e.notifier.has("Info", "Hotkeys saved successfully!"))
}

func TestRebindUnsupported(t *testing.T) {
	e := newEnv(t, "", nil)
	e.hook.err = platform.ErrUnsupported

	e.app.ChangeHotkey(rebind.TypingSlot)

	assert.True(t, e.notifier.has("Error", msgCaptureUnsupported))
	_, listening := e.app.capture.Listening()
	assert.False(t, listening)
}

func TestRebindTimesOut(t *testing.T) {
	e := newEnv(t, "", func(d *Deps) { d.CaptureTimeout = 10 * time.Millisecond })

	e.app.ChangeHotkey(rebind.TypingSlot)
	require.True(t, e.hook.hooked())

	require.Eventually(t, func() bool { return !e.hook.hooked() }, time.Second, time.Millisecond)
	_, listening := e.app.capture.Listening()
	assert.False(t, listening)
}

func TestChangeHotkeyTwiceHooksOnce(t *testing.T) {
	e := newEnv(t, "", nil)

	e.app.ChangeHotkey(rebind.TypingSlot)
	e.app.ChangeHotkey(rebind.EnterSlot)

	assert.Equal(t, 1, e.hook.installs)
	slot, listening := e.app.capture.Listening()
	assert.True(t, listening)
	assert.Equal(t, rebind.EnterSlot, slot)
}

func TestChangeSpeed(t *testing.T) {
	var asked int
	e := newEnv(t, "", func(d *Deps) {
		d.AskDelay = func(current int) (int, bool, error) {
			asked = current
			return 20, true, nil
		}
	})

	e.app.ChangeSpeed()

	assert.Equal(t, 1, asked)
	assert.Equal(t, 20, e.store.Snapshot().TypingDelayMs)
}

func TestChangeSpeedInvalid(t *testing.T) {
	e := newEnv(t, "", func(d *Deps) {
		d.AskDelay = func(current int) (int, bool, error) {
			return current, false, errors.New("delay must be >= 0, got -3")
		}
	})

	e.app.ChangeSpeed()

	assert.Equal(t, 1, e.store.Snapshot().TypingDelayMs)
	assert.True(t, e.notifier.has("Error", "delay must be >= 0, got -3"))
}

func TestApplyConfigReregistersChangedHotkeys(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.app.RegisterHotkeys())

	old := e.store.Snapshot()
	cur, err := e.store.Update(func(c *config.Config) {
		c.EnterToggleHotkey = config.HotkeyBinding{Modifiers: config.ModShift, KeyCode: config.VKF1}
	})
	require.NoError(t, err)

	e.app.ApplyConfig(old, cur)

	c, ok := e.sink.get(config.HotkeyIDToggleEnter)
	require.True(t, ok)
	assert.Equal(t, chord{uint32(config.ModShift), uint32(config.VKF1)}, c)
	c, _ = e.sink.get(config.HotkeyIDType)
	assert.Equal(t, chord{uint32(config.ModCtrl), 'B'}, c)
}

func TestCancelTyping(t *testing.T) {
	e := newEnv(t, "abcdef", nil)
	assert.False(t, e.app.CancelTyping())

	block := make(chan struct{})
	e.keyboard.block = block
	e.app.onTypeHotkey()
	require.Eventually(t, func() bool { return e.app.Engine().Active() != nil }, time.Second, time.Millisecond)

	assert.True(t, e.app.CancelTyping())
	close(block)

	require.Eventually(t, func() bool {
		n, _ := e.db.GetJobCount()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)
	jobs, err := e.db.GetJobs(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", jobs[0].State)
	assert.Equal(t, typing.ErrCancelled.Error(), jobs[0].ErrorMessage)

	e.player.mu.Lock()
	assert.Equal(t, 1, e.player.cancelled)
	e.player.mu.Unlock()
}

func TestToggleEnterWhenConfigCannotBeSaved(t *testing.T) {
	// a directory in place of the config file makes every save fail
	store := config.NewStore(config.Default(), t.TempDir())
	e := newEnv(t, "", func(d *Deps) { d.Store = store })
	require.NoError(t, e.app.RegisterHotkeys())

	e.app.Registry().Dispatch(config.HotkeyIDToggleEnter)

	assert.True(t, store.Snapshot().EnterKeyEnabled, "toggle applies in memory")
	e.tray.mu.Lock()
	assert.True(t, e.tray.enter)
	e.tray.mu.Unlock()
	require.Eventually(t, func() bool {
		return e.notifier.has("Error", msgSaveFailed) && e.notifier.has("Setting changed", "Enter at end: ON")
	}, time.Second, time.Millisecond)

	assert.False(t, e.app.TogglePreview())
	assert.False(t, store.Snapshot().ShowPreview)
}

func TestTypeHotkeyDuringClose(t *testing.T) {
	e := newEnv(t, "", nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				e.app.onTypeHotkey()
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	e.app.Close()
	close(stop)
	wg.Wait()

	e.app.onTypeHotkey()
	assert.Nil(t, e.app.Engine().Active())
	assert.Empty(t, e.keyboard.typed())
}

func TestSoundCueFollowsLiveSetting(t *testing.T) {
	e := newEnv(t, "x", nil)
	_, err := e.store.Update(func(c *config.Config) { c.Sound.Enabled = false })
	require.NoError(t, err)

	e.app.TypeClipboard()
	e.player.mu.Lock()
	assert.Zero(t, e.player.completed)
	e.player.mu.Unlock()

	_, err = e.store.Update(func(c *config.Config) { c.Sound.Enabled = true })
	require.NoError(t, err)

	e.app.TypeClipboard()
	e.player.mu.Lock()
	assert.Equal(t, 1, e.player.completed)
	e.player.mu.Unlock()
}
