package rebind

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/typetool/config"
	"markestedt/typetool/platform"
)

func newStore(t *testing.T) *config.Store {
	t.Helper()
	return config.NewStore(config.Default(), filepath.Join(t.TempDir(), "config.toml"))
}

func TestCaptureChord(t *testing.T) {
	c := New()

	var gotSlot Slot
	var got config.HotkeyBinding
	captures := 0
	c.OnCapture(func(s Slot, hb config.HotkeyBinding) {
		captures++
		gotSlot, got = s, hb
	})

	c.BeginListening(EnterSlot)
	consumed := c.OnKeyDown(platform.KeyEvent{VK: 'K', Ctrl: true, Alt: true})

	assert.True(t, consumed)
	assert.Equal(t, 1, captures)
	assert.Equal(t, EnterSlot, gotSlot)
	assert.Equal(t, config.HotkeyBinding{Modifiers: 3, KeyCode: 'K'}, got)

	_, listening := c.Listening()
	assert.False(t, listening, "back to idle after a capture")

	pending, ok := c.Pending(EnterSlot)
	require.True(t, ok)
	assert.Equal(t, got, pending)
}

func TestModifierAloneIsIgnored(t *testing.T) {
	c := New()
	c.OnCapture(func(Slot, config.HotkeyBinding) { t.Fatal("no capture expected") })
	c.BeginListening(TypingSlot)

	for _, vk := range []int{config.VKControl, config.VKLControl, config.VKShift, config.VKRMenu} {
		assert.False(t, c.OnKeyDown(platform.KeyEvent{VK: vk, Ctrl: true}))
	}

	slot, listening := c.Listening()
	assert.True(t, listening)
	assert.Equal(t, TypingSlot, slot)
	_, ok := c.Pending(TypingSlot)
	assert.False(t, ok)
}

func TestKeyDownWhileIdle(t *testing.T) {
	c := New()
	assert.False(t, c.OnKeyDown(platform.KeyEvent{VK: 'A', Ctrl: true}))
	_, ok := c.Pending(TypingSlot)
	assert.False(t, ok)
}

func TestInjectedKeysPassThrough(t *testing.T) {
	c := New()
	c.BeginListening(TypingSlot)

	assert.False(t, c.OnKeyDown(platform.KeyEvent{VK: 'A', Injected: true}))
	_, listening := c.Listening()
	assert.True(t, listening)
}

func TestBeginListeningSignalsUI(t *testing.T) {
	c := New()
	var signalled []Slot
	c.OnListen(func(s Slot) { signalled = append(signalled, s) })

	c.BeginListening(TypingSlot)
	c.BeginListening(EnterSlot)

	assert.Equal(t, []Slot{TypingSlot, EnterSlot}, signalled)
	slot, _ := c.Listening()
	assert.Equal(t, EnterSlot, slot, "latest target wins")
}

func TestCommitWritesConfig(t *testing.T) {
	store := newStore(t)
	c := New()

	c.BeginListening(TypingSlot)
	c.OnKeyDown(platform.KeyEvent{VK: 'T', Ctrl: true, Shift: true})

	cfg, changed, err := c.Commit(store)
	require.NoError(t, err)
	assert.Equal(t, []Slot{TypingSlot}, changed)
	assert.Equal(t, config.HotkeyBinding{Modifiers: config.ModCtrl | config.ModShift, KeyCode: 'T'}, cfg.TypingHotkey)
	assert.Equal(t, config.Default().EnterToggleHotkey, cfg.EnterToggleHotkey)
	assert.Equal(t, cfg, store.Snapshot())

	_, ok := c.Pending(TypingSlot)
	assert.False(t, ok, "pending edits are cleared by commit")
}

func TestCommitNothingPending(t *testing.T) {
	store := newStore(t)
	c := New()

	cfg, changed, err := c.Commit(store)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, *config.Default(), cfg)
}

func TestCommitRejectedKeepsPending(t *testing.T) {
	store := newStore(t)
	c := New()

	// same chord as the default enter toggle
	c.BeginListening(TypingSlot)
	c.OnKeyDown(platform.KeyEvent{VK: 'B', Ctrl: true, Alt: true})

	_, changed, err := c.Commit(store)
	require.Error(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, *config.Default(), store.Snapshot())

	_, ok := c.Pending(TypingSlot)
	assert.True(t, ok)
}

func TestDiscard(t *testing.T) {
	store := newStore(t)
	c := New()

	c.BeginListening(TypingSlot)
	c.OnKeyDown(platform.KeyEvent{VK: 'Q', Ctrl: true})
	c.BeginListening(EnterSlot)
	c.Discard()

	_, listening := c.Listening()
	assert.False(t, listening)
	_, ok := c.Pending(TypingSlot)
	assert.False(t, ok)

	_, changed, err := c.Commit(store)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, *config.Default(), store.Snapshot())
}

func TestSlot(t *testing.T) {
	assert.Equal(t, config.HotkeyIDType, TypingSlot.HotkeyID())
	assert.Equal(t, config.HotkeyIDToggleEnter, EnterSlot.HotkeyID())
	assert.Equal(t, "typing hotkey", TypingSlot.String())
}
