package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"markestedt/typetool/config"
	"markestedt/typetool/platform"
)

// ErrRegistrationDenied is returned when the OS refuses a chord, usually
// because another application already owns it.
var ErrRegistrationDenied = errors.New("hotkey registration denied")

// Registry keeps the global hotkeys registered with the OS and routes fired
// hotkeys to their handlers by id.
type Registry struct {
	sink platform.HotkeySink

	// regMu serializes sink calls. It is never held by Dispatch, which runs
	// on the thread the sink marshals its calls onto.
	regMu sync.Mutex

	mu       sync.Mutex
	active   map[int]config.HotkeyBinding
	handlers map[int]func()
}

// NewRegistry creates a registry bound to sink
func NewRegistry(sink platform.HotkeySink) *Registry {
	return &Registry{
		sink:     sink,
		active:   make(map[int]config.HotkeyBinding),
		handlers: make(map[int]func()),
	}
}

// Handle sets the action run when hotkey id fires. fn runs on the event loop
// thread and must hand off anything slow.
func (r *Registry) Handle(id int, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = fn
}

// Register binds hb to id, replacing any previous chord for that id. The old
// chord is always released first, so a failed or invalid registration leaves
// id unbound.
func (r *Registry) Register(id int, hb config.HotkeyBinding) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	// The result is irrelevant: the id may never have been registered
	_ = r.sink.Unregister(id)
	r.setActive(id, nil)

	if err := hb.Validate(); err != nil {
		return fmt.Errorf("invalid hotkey %s: %w", hb, err)
	}

	if err := r.sink.Register(id, uint32(hb.Modifiers), uint32(hb.KeyCode)); err != nil {
		slog.Error("Failed to register hotkey", "id", id, "hotkey", hb.String(), "error", err)
		return fmt.Errorf("%w: %s: %v", ErrRegistrationDenied, hb, err)
	}

	r.setActive(id, &hb)
	slog.Info("Hotkey registered", "id", id, "hotkey", hb.String())
	return nil
}

// Unregister releases id. Releasing an id that was never registered is not
// an error.
func (r *Registry) Unregister(id int) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if _, ok := r.Active(id); !ok {
		return nil
	}
	r.setActive(id, nil)
	if err := r.sink.Unregister(id); err != nil {
		return fmt.Errorf("failed to unregister hotkey %d: %w", id, err)
	}
	return nil
}

func (r *Registry) setActive(id int, hb *config.HotkeyBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hb == nil {
		delete(r.active, id)
		return
	}
	r.active[id] = *hb
}

// Active returns the chord currently registered under id
func (r *Registry) Active(id int) (config.HotkeyBinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hb, ok := r.active[id]
	return hb, ok
}

// Dispatch runs the handler for a fired hotkey. It is the sink's callback.
func (r *Registry) Dispatch(id int) {
	r.mu.Lock()
	fn, ok := r.handlers[id]
	_, registered := r.active[id]
	r.mu.Unlock()

	if !registered || !ok {
		slog.Warn("Ignoring unknown hotkey", "id", id)
		return
	}
	fn()
}
