package rebind

import (
	"fmt"
	"log/slog"
	"sync"

	"markestedt/typetool/config"
	"markestedt/typetool/platform"
)

// Slot names one of the two configurable bindings
type Slot int

const (
	TypingSlot Slot = iota
	EnterSlot
)

func (s Slot) String() string {
	switch s {
	case TypingSlot:
		return "typing hotkey"
	case EnterSlot:
		return "enter hotkey"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// HotkeyID returns the registry id bound to the slot
func (s Slot) HotkeyID() int {
	if s == EnterSlot {
		return config.HotkeyIDToggleEnter
	}
	return config.HotkeyIDType
}

// Capture records the next physical chord as a replacement binding. Captured
// bindings stay pending until Commit or Discard.
type Capture struct {
	mu        sync.Mutex
	listening bool
	slot      Slot
	pending   map[Slot]config.HotkeyBinding

	onListen  func(Slot)
	onCapture func(Slot, config.HotkeyBinding)
}

// New creates an idle Capture
func New() *Capture {
	return &Capture{pending: make(map[Slot]config.HotkeyBinding)}
}

// OnListen sets the callback that tells the user to press the new chord
func (c *Capture) OnListen(fn func(Slot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onListen = fn
}

// OnCapture sets the callback that receives each captured binding. It runs
// on the goroutine that delivered the key event and must not block.
func (c *Capture) OnCapture(fn func(Slot, config.HotkeyBinding)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCapture = fn
}

// BeginListening starts listening for slot, replacing any earlier target
func (c *Capture) BeginListening(slot Slot) {
	c.mu.Lock()
	c.listening = true
	c.slot = slot
	fn := c.onListen
	c.mu.Unlock()

	slog.Info("Listening for new hotkey", "slot", slot)
	if fn != nil {
		fn(slot)
	}
}

// Listening returns the target slot while a capture is in progress
func (c *Capture) Listening() (Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, c.listening
}

// OnKeyDown feeds a key-down event to the capture. It returns true when the
// event completed a chord and must not reach any other consumer.
func (c *Capture) OnKeyDown(ev platform.KeyEvent) (consumed bool) {
	if ev.Injected || config.IsModifierKey(ev.VK) {
		return false
	}

	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return false
	}
	hb := config.HotkeyBinding{
		Modifiers: config.Modifier(ev.Modifiers()),
		KeyCode:   ev.VK,
	}
	slot := c.slot
	c.pending[slot] = hb
	c.listening = false
	fn := c.onCapture
	c.mu.Unlock()

	slog.Info("Captured hotkey", "slot", slot, "hotkey", hb.String())
	if fn != nil {
		fn(slot, hb)
	}
	return true
}

// Pending returns the captured but not yet committed binding for slot
func (c *Capture) Pending(slot Slot) (config.HotkeyBinding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hb, ok := c.pending[slot]
	return hb, ok
}

// Discard stops listening and drops every pending edit
func (c *Capture) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
	clear(c.pending)
}

// Commit writes the pending edits into store and returns the saved config
// together with the slots that changed. Pending edits are kept when the
// store rejects them.
func (c *Capture) Commit(store *config.Store) (config.Config, []Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []Slot
	for _, slot := range []Slot{TypingSlot, EnterSlot} {
		if _, ok := c.pending[slot]; ok {
			changed = append(changed, slot)
		}
	}
	if len(changed) == 0 {
		c.listening = false
		return store.Snapshot(), nil, nil
	}

	cfg, err := store.Update(func(cfg *config.Config) {
		if hb, ok := c.pending[TypingSlot]; ok {
			cfg.TypingHotkey = hb
		}
		if hb, ok := c.pending[EnterSlot]; ok {
			cfg.EnterToggleHotkey = hb
		}
	})
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to save hotkeys: %w", err)
	}

	c.listening = false
	clear(c.pending)
	return cfg, changed, nil
}
