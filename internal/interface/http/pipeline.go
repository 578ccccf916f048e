package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/application/command"
	"github.com/vstep-dao/vstep-hub/internal/application/query"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION PIPELINE
// POST /api/execute {"action": "...", "payload": {...}}. "pipeline" is
// accepted as an alias of "action".
// ══════════════════════════════════════════════════════════════════════════════

type executeRequest struct {
	Action   string          `json:"action"`
	Pipeline string          `json:"pipeline"`
	Payload  json.RawMessage `json:"payload"`
}

func (r executeRequest) name() string {
	if r.Action != "" {
		return r.Action
	}
	return r.Pipeline
}

// actionFunc runs one action. A nil error yields HTTP 200 with the response.
type actionFunc func(ctx context.Context, payload json.RawMessage) (*response, error)

func (s *Server) registerActions() map[string]actionFunc {
	return map[string]actionFunc{
		"upload_content":     s.uploadContent,
		"fetch_test_content": s.fetchTestContent,
		"get_all_tests":      s.getAllTests,
		"submit_test":        s.submitTest,
		"register_or_login":  s.registerOrLogin,
		"get_user_profile":   s.getUserProfile,
		"confirm_purchase":   s.confirmPurchase,
		"get_leaderboard":    s.getLeaderboard,
		"get_admin_stats":    s.getAdminStats,
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	name := req.name()
	action, ok := s.actions[name]
	if !ok {
		writeFailure(w, http.StatusBadRequest, "unknown action '"+name+"'")
		return
	}
	defer s.metrics.ObserveRequest(name, start)

	resp, err := action(r.Context(), req.Payload)
	if err != nil {
		status, message := statusFor(err)
		log := s.logger.With(logger.Action(name), logger.RequestID(middleware.GetReqID(r.Context())))
		if status >= http.StatusInternalServerError {
			log.Error("action failed", zap.Int("status", status), zap.Error(err))
		} else {
			log.Debug("action rejected", zap.Int("status", status), zap.Error(err))
		}
		writeFailure(w, status, message)
		return
	}

	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrValidation, "malformed payload", err)
	}
	return nil
}

// userRef accepts both spellings the frontend sends.
type userRef struct {
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
}

func (u userRef) id() string {
	if u.UserID != "" {
		return u.UserID
	}
	return u.UserIDSnake
}

// ─────────────────────────────────────────────────────────────────────────────
// Actions
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) uploadContent(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p struct {
		TestContent exam.Content `json:"testContent"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	res, err := s.deps.UploadContent.Handle(ctx, command.UploadContentCommand{Content: p.TestContent})
	if err != nil {
		return nil, err
	}
	return &response{IpfsHash: res.ContentHash, Data: res}, nil
}

func (s *Server) fetchTestContent(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p struct {
		IpfsHash string `json:"ipfsHash"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	res, err := s.deps.FetchExam.Handle(ctx, p.IpfsHash)
	if err != nil {
		return nil, err
	}
	return &response{Content: res.Content, TestID: string(res.ExamID)}, nil
}

func (s *Server) getAllTests(ctx context.Context, _ json.RawMessage) (*response, error) {
	exams, err := s.deps.ListExams.Handle(ctx)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []exam.Summary{}
	}
	return &response{Data: exams}, nil
}

func (s *Server) submitTest(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p struct {
		userRef
		TestID      json.RawMessage `json:"testId"`
		UserAnswers []string        `json:"userAnswers"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	outcome, err := s.deps.SubmitExam.Handle(ctx, command.SubmitExamCommand{
		UserID:  p.id(),
		TestRef: testRef(p.TestID),
		Answers: p.UserAnswers,
	})
	if err != nil {
		return nil, err
	}
	return &response{SubmissionOutcome: outcome}, nil
}

// testRef accepts the exam reference as a JSON string or number.
func testRef(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (s *Server) registerOrLogin(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p struct {
		userRef
		StudentID string `json:"studentID"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	res, err := s.deps.RegisterOrLog.Handle(ctx, command.RegisterOrLoginCommand{
		UserID:    p.id(),
		StudentID: p.StudentID,
	})
	if err != nil {
		return nil, err
	}
	return &response{Status: res.Action, Data: query.ToProfileView(res.Account)}, nil
}

func (s *Server) getUserProfile(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p userRef
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	profile, err := s.deps.GetProfile.Handle(ctx, p.id())
	switch {
	case shared.IsNotFound(err):
		return &response{Status: "not_found"}, nil
	case err != nil:
		return nil, err
	}
	return &response{Status: "found", Data: profile}, nil
}

func (s *Server) confirmPurchase(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p userRef
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	res, err := s.deps.GrantAttempts.Handle(ctx, command.GrantAttemptsCommand{
		UserID: p.id(),
		Count:  s.config.PurchaseSize,
	})
	if err != nil {
		return nil, err
	}
	balance := res.RemainingAttempts
	return &response{NewBalance: &balance, Data: res}, nil
}

func (s *Server) getLeaderboard(ctx context.Context, raw json.RawMessage) (*response, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	rows, err := s.deps.GetLeaderboard.Handle(ctx, query.GetLeaderboardQuery{Limit: p.Limit})
	if err != nil {
		return nil, err
	}
	return &response{Data: rows}, nil
}

func (s *Server) getAdminStats(ctx context.Context, _ json.RawMessage) (*response, error) {
	stats, err := s.deps.GetAdminStats.Handle(ctx)
	if err != nil {
		return nil, err
	}
	return &response{Stats: stats}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps an error kind to a status and a message safe to show.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, shared.Message(err)
	case shared.IsNotFound(err):
		return http.StatusNotFound, shared.Message(err)
	case shared.IsQuotaExceeded(err):
		return http.StatusForbidden, shared.Message(err)
	case shared.IsDuplicate(err):
		return http.StatusConflict, shared.Message(err)
	case shared.IsLedgerUnavailable(err):
		return http.StatusServiceUnavailable, shared.Message(err)
	case shared.IsContentFetch(err):
		return http.StatusBadGateway, shared.Message(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
