package systray

import (
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"markestedt/typetool/icon"
	"markestedt/typetool/rebind"
)

// Actions are the operations the tray menu triggers
type Actions interface {
	TogglePreview() bool
	ToggleEnter() bool
	ChangeHotkey(slot rebind.Slot)
	ChangeSpeed()
	CancelTyping() bool
	ReloadHotkeys()
	// DashboardURL returns "" when the dashboard is disabled
	DashboardURL() string
}

// Manager owns the tray icon and its menu
type Manager struct {
	actions Actions
	icon    []byte
	quit    chan struct{}

	mu       sync.Mutex
	ready    bool
	hotkey   string
	preview  bool
	enter    bool
	mPreview *systray.MenuItem
	mEnter   *systray.MenuItem
}

// NewManager creates a tray manager showing the given initial toggles and
// typing hotkey.
func NewManager(actions Actions, hotkey string, preview, enter bool) *Manager {
	return &Manager{
		actions: actions,
		hotkey:  hotkey,
		icon:    icon.Tray(),
		quit:    make(chan struct{}),
		preview: preview,
		enter:   enter,
	}
}

// Run shows the tray icon. It blocks until Stop and must be called from
// the main goroutine.
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop removes the tray icon and makes Run return
func (m *Manager) Stop() {
	systray.Quit()
}

// WaitForQuit is closed when the user picks Quit
func (m *Manager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// SetHotkey shows the typing hotkey in the tooltip
func (m *Manager) SetHotkey(hotkey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkey = hotkey
	if m.ready {
		systray.SetTooltip(tooltip(hotkey))
	}
}

func tooltip(hotkey string) string {
	return "TypeTool (" + hotkey + ")"
}

// SetEnter updates the Enter-at-end check mark
func (m *Manager) SetEnter(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enter = on
	setChecked(m.mEnter, on)
}

// SetPreview updates the preview check mark
func (m *Manager) SetPreview(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preview = on
	setChecked(m.mPreview, on)
}

func setChecked(item *systray.MenuItem, on bool) {
	if item == nil {
		return
	}
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func (m *Manager) onReady() {
	systray.SetIcon(m.icon)
	systray.SetTitle("TypeTool")

	m.mu.Lock()
	m.ready = true
	systray.SetTooltip(tooltip(m.hotkey))
	m.mPreview = systray.AddMenuItemCheckbox("Show preview", "Show a notification with the text before typing", m.preview)
	m.mEnter = systray.AddMenuItemCheckbox("Enter at end", "Press Enter after the text", m.enter)
	m.mu.Unlock()

	systray.AddSeparator()
	mTypingKey := systray.AddMenuItem("Change typing hotkey...", "Press a new key combination for typing")
	mEnterKey := systray.AddMenuItem("Change enter hotkey...", "Press a new key combination for the Enter toggle")
	mSpeed := systray.AddMenuItem("Speed...", "Delay between characters")
	mReload := systray.AddMenuItem("Reload hotkeys", "Register both hotkeys again")

	systray.AddSeparator()
	mCancel := systray.AddMenuItem("Cancel typing", "Stop the running job")

	var dashboardClicks <-chan struct{}
	if url := m.actions.DashboardURL(); url != "" {
		mDashboard := systray.AddMenuItem("Open dashboard", "Open the TypeTool web dashboard")
		dashboardClicks = mDashboard.ClickedCh
	}

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit TypeTool")

	go func() {
		for {
			select {
			case <-m.mPreview.ClickedCh:
				m.SetPreview(m.actions.TogglePreview())
			case <-m.mEnter.ClickedCh:
				m.SetEnter(m.actions.ToggleEnter())
			case <-mTypingKey.ClickedCh:
				m.actions.ChangeHotkey(rebind.TypingSlot)
			case <-mEnterKey.ClickedCh:
				m.actions.ChangeHotkey(rebind.EnterSlot)
			case <-mSpeed.ClickedCh:
				go m.actions.ChangeSpeed()
			case <-mReload.ClickedCh:
				m.actions.ReloadHotkeys()
			case <-mCancel.ClickedCh:
				if !m.actions.CancelTyping() {
					slog.Info("Nothing to cancel")
				}
			case <-dashboardClicks:
				openBrowser(m.actions.DashboardURL())
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				close(m.quit)
				systray.Quit()
				return
			}
		}
	}()
}

func (m *Manager) onExit() {
	slog.Info("System tray exited")
}

func openBrowser(url string) {
	slog.Info("Opening dashboard", "url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to open dashboard", "error", err)
	}
}
