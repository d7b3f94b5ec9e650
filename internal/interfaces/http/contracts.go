package http

import (
	"time"

	"github.com/sawpanic/earnrun/internal/domain/ranking"
	"github.com/sawpanic/earnrun/internal/live"
	"github.com/sawpanic/earnrun/internal/risk"
)

// ErrorResponse represents standardized error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CandidateResponse is the latest decision cycle with its selection report
type CandidateResponse struct {
	Timestamp time.Time               `json:"timestamp"`
	Outcome   live.Outcome            `json:"outcome"`
	Reason    string                  `json:"reason,omitempty"`
	Candidate *ranking.CandidateScore `json:"candidate,omitempty"`
	Report    *ranking.Report         `json:"report,omitempty"`
	Cycle     *live.CycleResult       `json:"cycle"`
}

// RiskResponse reports risk headroom at the last known equity
type RiskResponse struct {
	Timestamp time.Time    `json:"timestamp"`
	Equity    float64      `json:"equity"`
	Summary   risk.Summary `json:"summary"`
}
