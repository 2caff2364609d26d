package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/events"
	"github.com/biohunter/internal/memory"
	"github.com/biohunter/internal/metrics"
	"github.com/biohunter/internal/service"
)

type testServer struct {
	store   *memory.Store
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	rec := metrics.NewRecorder()

	store := memory.NewStore()
	rankings := memory.NewRankingStore()
	dispatcher := events.NewDispatcher(0, time.Second, rec, logger)
	bus := events.NewLocalBus(dispatcher, 0, 0, logger)

	leaderboard := service.NewLeaderboardService(rankings, store, &cfg.Leaderboard, rec, logger)
	achievements := service.NewAchievementEvaluator(store, rec, logger)
	dispatcher.Subscribe("leaderboard", leaderboard.HandleSessionRecorded)
	dispatcher.Subscribe("achievements", achievements.HandleSessionRecorded)

	svc := Services{
		Recorder:    service.NewScoreRecorder(store, bus, rec, logger),
		Leaderboard: leaderboard,
		Gacha:       service.NewGachaEngine(store, cfg.Gacha.Cost, rec, logger),
		Daily:       service.NewDailyQuestionService(store, &cfg.Daily, logger),
		Players:     service.NewPlayerService(store, logger),
	}
	h := NewHandler(svc, nil, &cfg.Leaderboard, rec, logger)
	h.AddReadinessCheck("store", store)

	return &testServer{store: store, handler: h, router: h.Router()}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestSubmitScore(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, http.MethodPost, "/score", map[string]interface{}{"userId": "p1", "score": 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["sessionId"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	cases := []map[string]interface{}{
		{"score": 10},
		{"userId": "p1"},
		{"userId": "p1", "score": -5},
	}
	for _, c := range cases {
		rec, body := srv.do(t, http.MethodPost, "/score", c)
		if rec.Code != http.StatusBadRequest || body["success"] != false {
			t.Fatalf("body %v: expected 400, got %d", c, rec.Code)
		}
	}
}

// unavailableStore fails every session write as an exhausted store would
type unavailableStore struct {
	*memory.Store
}

func (unavailableStore) RecordSession(context.Context, domain.Session, string) (domain.PlayerAggregate, error) {
	return domain.PlayerAggregate{}, fmt.Errorf("record session: %w: %w", domain.ErrStoreUnavailable, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
}

func TestSubmitScoreStoreFailureIsOpaque(t *testing.T) {
	srv := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	down := unavailableStore{Store: srv.store}
	srv.handler.svc.Recorder = service.NewScoreRecorder(down, events.NewLocalBus(events.NewDispatcher(0, time.Second, nil, logger), 0, 0, logger), nil, logger)
	router := srv.handler.Router()

	req := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{"userId":"p1","score":10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Code != "internal_error" || body.Error != domain.ErrInternalError.Error() {
		t.Fatalf("unexpected error body %+v", body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") || strings.Contains(rec.Body.String(), "unavailable") {
		t.Fatalf("store details leaked: %s", rec.Body.String())
	}
}

func TestSubmitScoreMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLeaderboardWithUserRank(t *testing.T) {
	srv := newTestServer(t)
	for _, s := range []struct {
		id    string
		score int
	}{{"a", 300}, {"b", 200}, {"c", 100}} {
		if rec, _ := srv.do(t, http.MethodPost, "/score", map[string]interface{}{"userId": s.id, "score": s.score}); rec.Code != http.StatusOK {
			t.Fatalf("submit %s: %d", s.id, rec.Code)
		}
	}

	rec, body := srv.do(t, http.MethodGet, "/leaderboard?type=global&limit=2&userId=c", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries, ok := body["leaderboard"].([]interface{})
	if !ok || len(entries) != 2 {
		t.Fatalf("expected two entries, got %v", body["leaderboard"])
	}
	first := entries[0].(map[string]interface{})
	if first["userId"] != "a" || first["rank"] != float64(1) || first["score"] != float64(300) {
		t.Fatalf("unexpected first entry %v", first)
	}
	if body["userRank"] != float64(3) {
		t.Fatalf("expected userRank 3, got %v", body["userRank"])
	}

	_, body = srv.do(t, http.MethodGet, "/leaderboard?userId=ghost", nil)
	if body["userRank"] != nil {
		t.Fatalf("expected null userRank for unknown player, got %v", body["userRank"])
	}

	rec, _ = srv.do(t, http.MethodGet, "/leaderboard?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestGachaPull(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPut, "/players/p1", map[string]interface{}{"displayName": "P1", "currencyBalance": 150})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on provision, got %d", rec.Code)
	}

	rec, body := srv.do(t, http.MethodPost, "/gacha-pull", map[string]string{"userId": "p1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	reward := body["reward"].(map[string]interface{})
	if reward["type"] != "skin" || reward["id"] == "" || reward["rarity"] == "" {
		t.Fatalf("unexpected reward %v", reward)
	}

	rec, body = srv.do(t, http.MethodPost, "/gacha-pull", map[string]string{"userId": "p1"})
	if rec.Code != http.StatusBadRequest || body["code"] != "insufficient_funds" {
		t.Fatalf("expected insufficient_funds, got %d %v", rec.Code, body)
	}

	rec, _ = srv.do(t, http.MethodPost, "/gacha-pull", map[string]string{"userId": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown player, got %d", rec.Code)
	}
}

func TestDailyQuestion(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, http.MethodGet, "/daily-microscope", nil)
	if rec.Code != http.StatusServiceUnavailable || body["code"] != "no_daily_question" {
		t.Fatalf("expected 503 with empty pool, got %d %v", rec.Code, body)
	}

	if err := srv.store.AddQuestion(context.Background(), "q1", "daily", "What is a cell?"); err != nil {
		t.Fatalf("add question: %v", err)
	}

	rec, body = srv.do(t, http.MethodGet, "/daily-microscope?userId=p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	question := body["question"].(map[string]interface{})
	if question["questionId"] != "q1" {
		t.Fatalf("unexpected question %v", question)
	}
	if body["hasAnswered"] != false {
		t.Fatalf("expected hasAnswered false, got %v", body["hasAnswered"])
	}

	if rec, _ := srv.do(t, http.MethodPost, "/daily-microscope/answer", map[string]string{"userId": "p1"}); rec.Code != http.StatusOK {
		t.Fatalf("answer: %d", rec.Code)
	}
	_, body = srv.do(t, http.MethodGet, "/daily-microscope?userId=p1", nil)
	if body["hasAnswered"] != true {
		t.Fatalf("expected hasAnswered true, got %v", body["hasAnswered"])
	}

	_, body = srv.do(t, http.MethodGet, "/daily-microscope", nil)
	if _, present := body["hasAnswered"]; present {
		t.Fatalf("hasAnswered must be omitted without userId")
	}
}

func TestPlayerEndpoints(t *testing.T) {
	srv := newTestServer(t)

	if rec, _ := srv.do(t, http.MethodGet, "/players/p1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before provisioning, got %d", rec.Code)
	}
	srv.do(t, http.MethodPut, "/players/p1", map[string]interface{}{"currencyBalance": 10})

	rec, body := srv.do(t, http.MethodPost, "/players/p1/credit", map[string]int{"amount": 90})
	if rec.Code != http.StatusOK || body["currencyBalance"] != float64(100) {
		t.Fatalf("unexpected credit response %d %v", rec.Code, body)
	}

	rec, body = srv.do(t, http.MethodGet, "/players/p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	player := body["player"].(map[string]interface{})
	if player["currencyBalance"] != float64(100) || player["userId"] != "p1" {
		t.Fatalf("unexpected player %v", player)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t)

	if rec, _ := srv.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec, _ := srv.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}

	srv.handler.AddReadinessCheck("redis", downPinger{})
	rec, _ := srv.do(t, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with a failing dependency, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/score", map[string]interface{}{"userId": "p1", "score": 5})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "biohunter_sessions_recorded_total 1") {
		t.Fatalf("expected session counter in metrics output")
	}
}
