package http

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/vstep-dao/vstep-hub/internal/application/command"
	"github.com/vstep-dao/vstep-hub/internal/application/query"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// response is the body of every pipeline reply. Besides Data, a few actions
// keep the top-level keys the frontend already reads.
type response struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`

	IpfsHash   string              `json:"ipfsHash,omitempty"`
	Content    *exam.PublicContent `json:"content,omitempty"`
	TestID     string              `json:"test_id,omitempty"`
	NewBalance *int                `json:"newBalance,omitempty"`
	Stats      *query.AdminStats   `json:"stats,omitempty"`

	// The submit_test reply is flat.
	*command.SubmissionOutcome
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, response{Success: false, Message: message})
}
