package dto

import "time"

// GenerationMode selects the model, timeout and verbosity of a run.
type GenerationMode string

const (
	ModeQuick GenerationMode = "quick"
	ModeDeep  GenerationMode = "deep"
)

// ReportContent is the normalized result of a generation run. When the
// collaborator's output carries no recognizable structure, everything
// lands in Summary and the other sections stay empty.
type ReportContent struct {
	Summary         string         `json:"summary"`
	KeyMetrics      string         `json:"key_metrics"`
	Insights        string         `json:"insights"`
	Recommendations string         `json:"recommendations"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Duration        time.Duration  `json:"duration_ns"`
	Mode            GenerationMode `json:"mode"`
}

// GenerationRequest carries everything the collaborator needs for one run.
type GenerationRequest struct {
	ReportName  string
	Description string
	Query       string
	Frequency   string
	OwnerRole   string
	Mode        GenerationMode
}

// Gemini REST payloads, generateContent shape.
type GeminiAPIRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GeminiAPIResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content CandidateContent `json:"content"`
}

type CandidateContent struct {
	Parts []Part `json:"parts"`
}
