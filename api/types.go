package api

import (
	"github.com/DefensEye/cmmc12/finding"
	"github.com/DefensEye/cmmc12/history"
)

// Error is the body of every failed response.
type Error struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// AnalyzeRequest is the optional body of POST /api/analyze-rag.
type AnalyzeRequest struct {
	SecurityDataCsv string `json:"securityDataCsv,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

// Finding is a normalized security finding.
type Finding = finding.Finding

// AnalysisRecord is a stored analysis.
type AnalysisRecord = history.Record

// PostAnalyzeRagParamsMode selects the domain distribution.
type PostAnalyzeRagParamsMode string

const (
	Weighted PostAnalyzeRagParamsMode = "weighted"
	Tagged   PostAnalyzeRagParamsMode = "tagged"
)

// Valid reports whether m is a known mode.
func (m PostAnalyzeRagParamsMode) Valid() bool {
	switch m {
	case Weighted, Tagged:
		return true
	}
	return false
}

// PostAnalyzeRagParams defines parameters for PostAnalyzeRag.
type PostAnalyzeRagParams struct {
	Mode *PostAnalyzeRagParamsMode `form:"mode,omitempty" json:"mode,omitempty"`
}

// GetAnalysesParams defines parameters for GetAnalyses.
type GetAnalysesParams struct {
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}
