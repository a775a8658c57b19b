package main

import (
	"context"
	"fmt"
	"log/slog"

	"markestedt/typetool/app"
	"markestedt/typetool/audio"
	"markestedt/typetool/config"
	"markestedt/typetool/dialog"
	"markestedt/typetool/notify"
	"markestedt/typetool/platform/native"
	"markestedt/typetool/storage"
	"markestedt/typetool/systray"
	"markestedt/typetool/typing"
	"markestedt/typetool/web"
)

// Agent owns the OS resources behind the tray application
type Agent struct {
	store  *config.Store
	loop   *native.Loop
	app    *app.App
	tray   *systray.Manager
	db     *storage.DB
	web    *web.Server
	player *audio.Lazy
}

// NewAgent creates the hotkey loop and every optional service the config
// enables. Optional services that fail to start are logged and skipped.
func NewAgent(cfg *config.Config, configPath string) (*Agent, error) {
	a := &Agent{
		store:  config.NewStore(cfg, configPath),
		player: audio.NewLazy(),
	}

	if cfg.History.Enabled {
		dir, err := config.ConfigDir()
		if err == nil {
			a.db, err = storage.Open(dir)
		}
		if err != nil {
			slog.Warn("History disabled", "error", err)
		}
	}

	// a.app is set below, before any hotkey is registered
	loop, err := native.NewLoop(func(id int) { a.app.Registry().Dispatch(id) })
	if err != nil {
		a.closeServices()
		return nil, fmt.Errorf("failed to start hotkey loop: %w", err)
	}
	a.loop = loop

	deps := app.Deps{
		Store:         a.store,
		Sink:          loop,
		Hook:          loop,
		Keys:          native.NewKeyProbe(),
		Keyboard:      native.NewKeyboard(),
		Clipboard:     native.NewClipboard(),
		Notifier:      notify.New(""),
		DB:            a.db,
		Player:        a.player,
		ConfirmHotkey: dialog.ConfirmHotkey,
		AskDelay:      dialog.AskDelay,
		Timing:        typing.DefaultTiming(),
	}
	if cfg.Web.Enabled {
		a.web = web.NewServer(a.db, a.store, cfg.Web.Port)
		deps.Web = a.web
	}

	a.app = app.New(deps)
	a.tray = systray.NewManager(a.app, cfg.TypingHotkey.String(), cfg.ShowPreview, cfg.EnterKeyEnabled)
	a.app.SetTray(a.tray)

	if a.web != nil {
		a.web.SetStatusFunc(a.app.Status)
		a.web.OnConfigChange(a.app.ApplyConfig)
	}
	return a, nil
}

// Run registers the hotkeys and shows the tray until ctx is done or the
// user quits. It must be called from the main goroutine.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.web != nil {
		go func() {
			if err := a.web.Start(ctx); err != nil {
				slog.Error("Web server stopped", "error", err)
			}
		}()
	}

	if err := a.app.RegisterHotkeys(); err != nil {
		// the tray stays usable for picking another chord
		slog.Warn("Some hotkeys are not active", "error", err)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-a.tray.WaitForQuit():
		}
		a.tray.Stop()
	}()

	cfg := a.store.Snapshot()
	slog.Info("TypeTool started",
		"typing_hotkey", cfg.TypingHotkey.String(),
		"enter_hotkey", cfg.EnterToggleHotkey.String(),
		"delay_ms", cfg.TypingDelayMs)

	a.tray.Run()
	return nil
}

// Close stops the running job and releases everything NewAgent acquired
func (a *Agent) Close() {
	a.app.Close()
	if err := a.loop.Close(); err != nil {
		slog.Warn("Failed to close hotkey loop", "error", err)
	}
	a.closeServices()
}

func (a *Agent) closeServices() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
	if a.player != nil {
		if err := a.player.Close(); err != nil {
			slog.Warn("Failed to close audio player", "error", err)
		}
	}
}
