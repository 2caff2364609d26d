package handler

import (
	"net/http"
	"strconv"

	"github.com/biohunter/internal/domain"
)

// ScoreResponse is the body of a recorded score
type ScoreResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

// LeaderboardResponse is the body of a ranking query
type LeaderboardResponse struct {
	Success     bool                 `json:"success"`
	Type        string               `json:"type"`
	Leaderboard []domain.RankedEntry `json:"leaderboard"`
	UserRank    *int64               `json:"userRank"`
}

// GachaResponse is the body of a successful pull
type GachaResponse struct {
	Success bool          `json:"success"`
	Reward  domain.Reward `json:"reward"`
}

// DailyQuestionResponse is the body of the daily question request
type DailyQuestionResponse struct {
	Success     bool                 `json:"success"`
	Question    domain.DailyQuestion `json:"question"`
	HasAnswered *bool                `json:"hasAnswered,omitempty"`
}

type userRequest struct {
	PlayerID string `json:"userId"`
}

// SubmitScore handles POST /score
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req domain.ScoreSubmission
	if !h.decodeBody(w, r, &req) {
		return
	}

	sessionID, err := h.svc.Recorder.RecordScore(r.Context(), req.PlayerID, req.Score, req.SessionData)
	if err != nil {
		h.writeServiceError(w, r, "record score", req.PlayerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ScoreResponse{Success: true, SessionID: sessionID})
}

// GetLeaderboard handles GET /leaderboard?type=&limit=&userId=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rankingType := q.Get("type")
	if rankingType == "" {
		rankingType = h.config.DefaultType
	}

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", "invalid_request")
			return
		}
		limit = l
	}

	entries, err := h.svc.Leaderboard.QueryTopN(r.Context(), rankingType, limit)
	if err != nil {
		h.writeServiceError(w, r, "query top n", "", err)
		return
	}

	resp := LeaderboardResponse{
		Success:     true,
		Type:        rankingType,
		Leaderboard: entries,
	}

	if playerID := q.Get("userId"); playerID != "" {
		rank, found, err := h.svc.Leaderboard.QueryRank(r.Context(), rankingType, playerID)
		if err != nil {
			h.writeServiceError(w, r, "query rank", playerID, err)
			return
		}
		if found {
			resp.UserRank = &rank
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GachaPull handles POST /gacha-pull
func (h *Handler) GachaPull(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	reward, err := h.svc.Gacha.Pull(r.Context(), req.PlayerID)
	if err != nil {
		h.writeServiceError(w, r, "gacha pull", req.PlayerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, GachaResponse{Success: true, Reward: reward})
}

// GetDailyQuestion handles GET /daily-microscope?userId=
func (h *Handler) GetDailyQuestion(w http.ResponseWriter, r *http.Request) {
	question, err := h.svc.Daily.GetOrCreateToday(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "daily question", "", err)
		return
	}

	resp := DailyQuestionResponse{Success: true, Question: question}
	if playerID := r.URL.Query().Get("userId"); playerID != "" {
		answered, err := h.svc.Daily.HasAnswered(r.Context(), playerID, question.Date)
		if err != nil {
			h.writeServiceError(w, r, "has answered", playerID, err)
			return
		}
		resp.HasAnswered = &answered
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// AnswerDailyQuestion handles POST /daily-microscope/answer
func (h *Handler) AnswerDailyQuestion(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	answer, created, err := h.svc.Daily.RecordAnswer(r.Context(), req.PlayerID)
	if err != nil {
		h.writeServiceError(w, r, "record answer", req.PlayerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"date":     answer.Date,
		"recorded": created,
	})
}
