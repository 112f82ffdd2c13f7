package httpapi

import (
	"context"
	"net/http"

	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/domain"
)

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.gateway.Join(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJoin(res))
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.control.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	username := req.Username
	if username == "" {
		username = domain.DefaultAdminUsername
	}
	writeJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		Username string `json:"username"`
	}{true, username})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.gateway.Status(r.Context(), r.URL.Query().Get("username"), clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(st))
}

func (s *Server) submit(round domain.Round) http.HandlerFunc {
	score := s.pipeline.SubmitText
	if round == domain.RoundImage {
		score = s.pipeline.SubmitImage
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := score(r.Context(), application.Submission{
			Username:   req.Username,
			Answers:    req.Answers,
			QuestionID: string(req.QuestionID),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubmit(round, res))
	}
}

func (s *Server) toggleRound(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	round, err := domain.ParseRound(req.Round)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.control.ToggleRound(r.Context(), req.Password, round, req.State); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) updateTextRound(w http.ResponseWriter, r *http.Request) {
	var req textRoundRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	content := req.TextRoundContent
	content.TimerMinutes = req.TimerMinutes
	if err := s.control.UpdateTextRound(r.Context(), req.Password, content); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) updateImageRound(w http.ResponseWriter, r *http.Request) {
	var req imageRoundRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	content := req.ImageRoundContent
	content.TimerMinutes = req.TimerMinutes
	if err := s.control.UpdateImageRound(r.Context(), req.Password, content); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) setCompetitionSecret(w http.ResponseWriter, r *http.Request) {
	var req competitionSecretRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.control.SetCompetitionSecret(r.Context(), req.AuthPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Global Password Updated"})
}

func (s *Server) changeAdminSecret(w http.ResponseWriter, r *http.Request) {
	var req changeAdminSecretRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.control.ChangeAdminSecret(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password updated successfully"})
}

func (s *Server) warn(w http.ResponseWriter, r *http.Request) {
	var req warnRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	found, err := s.control.Warn(r.Context(), req.Password, req.Username, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, foundResponse{Success: true, Found: found})
}

// userAction adapts the kick, reset and delete operations.
func (s *Server) userAction(op func(ctx context.Context, secret, username string) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		found, err := op(r.Context(), req.Password, req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, foundResponse{Success: true, Found: found})
	}
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.control.Dashboard(r.Context(), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboard(d))
}

func (s *Server) allTime(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	board, err := s.control.AllTimeLeaderboard(r.Context(), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allTimeResponse{Total: board.Total, Leaderboard: toStandings(board.Standings)})
}
