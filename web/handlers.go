package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"markestedt/typetool/config"
	"markestedt/typetool/storage"
)

type configResponse struct {
	EnterKeyEnabled   bool   `json:"enterKeyEnabled"`
	ShowPreview       bool   `json:"showPreview"`
	TypingDelayMs     int    `json:"typingDelayMs"`
	TypingHotkey      string `json:"typingHotkey"`
	EnterToggleHotkey string `json:"enterToggleHotkey"`
	WebPort           int    `json:"webPort"`
	HistoryEnabled    bool   `json:"historyEnabled"`
	SoundEnabled      bool   `json:"soundEnabled"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetConfig(w, r)
	case http.MethodPut:
		s.handlePutConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot()
	writeJSON(w, configResponse{
		EnterKeyEnabled:   cfg.EnterKeyEnabled,
		ShowPreview:       cfg.ShowPreview,
		TypingDelayMs:     cfg.TypingDelayMs,
		TypingHotkey:      cfg.TypingHotkey.Combo(),
		EnterToggleHotkey: cfg.EnterToggleHotkey.Combo(),
		WebPort:           cfg.Web.Port,
		HistoryEnabled:    cfg.History.Enabled,
		SoundEnabled:      cfg.Sound.Enabled,
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnterKeyEnabled   *bool   `json:"enterKeyEnabled"`
		ShowPreview       *bool   `json:"showPreview"`
		TypingDelayMs     *int    `json:"typingDelayMs"`
		TypingHotkey      *string `json:"typingHotkey"`
		EnterToggleHotkey *string `json:"enterToggleHotkey"`
		SoundEnabled      *bool   `json:"soundEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	typing, err := parseHotkeyField(req.TypingHotkey)
	if err != nil {
		http.Error(w, "typingHotkey: "+err.Error(), http.StatusBadRequest)
		return
	}
	enter, err := parseHotkeyField(req.EnterToggleHotkey)
	if err != nil {
		http.Error(w, "enterToggleHotkey: "+err.Error(), http.StatusBadRequest)
		return
	}

	old := s.store.Snapshot()
	cur, err := s.store.Update(func(cfg *config.Config) {
		if req.EnterKeyEnabled != nil {
			cfg.EnterKeyEnabled = *req.EnterKeyEnabled
		}
		if req.ShowPreview != nil {
			cfg.ShowPreview = *req.ShowPreview
		}
		if req.TypingDelayMs != nil {
			cfg.TypingDelayMs = *req.TypingDelayMs
		}
		if typing != nil {
			cfg.TypingHotkey = *typing
		}
		if enter != nil {
			cfg.EnterToggleHotkey = *enter
		}
		if req.SoundEnabled != nil {
			cfg.Sound.Enabled = *req.SoundEnabled
		}
	})
	if err != nil {
		slog.Warn("Rejected config update", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.configChanged(old, cur)
	writeJSON(w, map[string]string{"status": "success"})
}

func parseHotkeyField(combo *string) (*config.HotkeyBinding, error) {
	if combo == nil {
		return nil, nil
	}
	hb, err := config.ParseHotkey(*combo)
	if err != nil {
		return nil, err
	}
	return &hb, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	days := 7
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	overall, err := s.db.GetOverallStats(days)
	if err != nil {
		slog.Error("Failed to get overall stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}
	daily, err := s.db.GetDailyStats(days)
	if err != nil {
		slog.Error("Failed to get daily stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"days":    days,
		"overall": overall,
		"daily":   daily,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetHistory(w, r)
	case http.MethodDelete:
		s.handleDeleteHistory(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	jobs, err := s.db.GetJobs(limit, offset)
	if err != nil {
		slog.Error("Failed to get jobs", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	total, err := s.db.GetJobCount()
	if err != nil {
		slog.Error("Failed to get job count", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleDeleteHistory deletes /api/history/{id}
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/history/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || idStr == r.URL.Path {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteJob(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to delete job", "error", err, "id", id)
		http.Error(w, "Failed to delete job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.store.Snapshot()
	writeJSON(w, map[string]any{
		"status":          s.currentStatus(),
		"enterKeyEnabled": cfg.EnterKeyEnabled,
	})
}
