package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/eval"
	"github.com/kapu/stream-chess-vote-go/internal/game"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleGameStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.mgr.Start(); err != nil {
		if errors.Is(err, game.ErrGameFinished) {
			writeError(w, http.StatusConflict, "game is finished; reset to start a new one")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleGamePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	s.mgr.Pause()
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleGameReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var override *config.Settings
	if r.Body != nil && r.ContentLength != 0 {
		var req gamedto.ResetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid reset request body")
			return
		}
		next := s.mgr.Settings()
		applyResetRequest(&next, req)
		override = &next
	}

	if err := s.mgr.Reset(override); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.restartPumps()
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func applyResetRequest(settings *config.Settings, req gamedto.ResetRequest) {
	if req.SecondsPerMove > 0 {
		settings.SecondsPerMove = req.SecondsPerMove
	}
	if req.MoveSelection != "" {
		settings.MoveSelection = config.Strategy(req.MoveSelection)
	}
	if req.VoteLimits != "" {
		settings.VoteRestriction = config.Restriction(req.VoteLimits)
	}
	if req.White != nil {
		settings.White = config.SideSettings{Platform: config.Platform(req.White.Platform), Channel: req.White.ChannelID}
	}
	if req.Black != nil {
		settings.Black = config.SideSettings{Platform: config.Platform(req.Black.Platform), Channel: req.Black.ChannelID}
	}
}

func (s *Server) handleGameBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req gamedto.BanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Move == "" {
		writeError(w, http.StatusBadRequest, "ban request needs a move")
		return
	}
	if err := s.mgr.Ban(req.Move); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleGameEvaluation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.eval == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation is not configured")
		return
	}
	multiPV := 1
	if v := r.URL.Query().Get("multi_pv"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5 {
			multiPV = n
		}
	}
	ev, err := s.eval.Evaluate(r.Context(), s.mgr.FEN(), multiPV)
	if err != nil {
		switch {
		case errors.Is(err, eval.ErrNoEval):
			writeError(w, http.StatusNotFound, "no evaluation available for the current position")
		case errors.Is(err, eval.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "evaluation provider rate limited")
		default:
			obslog.L().Warn("evaluation_error", zap.Error(err))
			writeError(w, http.StatusBadGateway, "evaluation lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleGameHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.arc == nil {
		writeError(w, http.StatusServiceUnavailable, "game history is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	records, err := s.arc.RecentGames(r.Context(), limit)
	if err != nil {
		obslog.L().Warn("history_query_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if records == nil {
		records = []gamedto.GameRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
