package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
	"go.uber.org/zap"
)

const defaultListLimit = 50

type stateView struct {
	Label     string                  `json:"label"`
	Halted    bool                    `json:"halted"`
	LastBarAt *time.Time              `json:"last_bar_at,omitempty"`
	DailyLoss usecase.DailyLossReport `json:"daily_loss"`
	Positions []domain.PositionState  `json:"positions"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.engine != nil && s.engine.Halted() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "halted"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "Engine not running", http.StatusServiceUnavailable)
		return
	}
	report, at := s.engine.LastReport()
	view := stateView{
		Label:     s.engine.Label(),
		Halted:    s.engine.Halted(),
		DailyLoss: report,
		Positions: s.engine.Lifecycle().Snapshot(),
	}
	if !at.IsZero() {
		view.LastBarAt = &at
	}
	s.writeJSON(w, http.StatusOK, view)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.journal.ListDecisions(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to list decisions", zap.Error(err))
		http.Error(w, "Failed to list decisions", http.StatusInternalServerError)
		return
	}
	if decisions == nil {
		decisions = []*domain.DecisionRecord{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.journal.ListTrades(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []*domain.TradeRecord{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}
