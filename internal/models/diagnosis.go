package models

// Referral is one ranked alternative diagnosis proposed for a referral letter.
type Referral struct {
	Code              string `json:"code"`
	Description       string `json:"description"`
	Kompetensi        string `json:"kompetensi,omitempty"`
	ClinicalReasoning string `json:"clinical_reasoning"`
}

// Evidence holds the model's supporting reasoning.
type Evidence struct {
	ClinicalReasoning     string   `json:"clinical_reasoning,omitempty"`
	Guidelines            []string `json:"guidelines,omitempty"`
	RedFlags              []string `json:"red_flags,omitempty"`
	DifferentialDiagnosis []string `json:"differential_diagnosis,omitempty"`
}

// ICD10Result is the structured diagnosis returned to callers.
type ICD10Result struct {
	Code                 string     `json:"code"`
	Description          string     `json:"description"`
	Category             string     `json:"category,omitempty"`
	ConfidenceScore      float64    `json:"confidence_score,omitempty"`
	Urgency              string     `json:"urgency,omitempty"`
	TriageScore          float64    `json:"triage_score,omitempty"`
	RecommendedTimeframe string     `json:"recommended_timeframe,omitempty"`
	ClinicalNotes        string     `json:"clinical_notes,omitempty"`
	Evidence             *Evidence  `json:"evidence,omitempty"`
	ProposedReferrals    []Referral `json:"proposed_referrals"`
}

// Clone returns a deep copy so cached results are never aliased by callers.
func (r ICD10Result) Clone() ICD10Result {
	out := r
	if r.Evidence != nil {
		ev := *r.Evidence
		ev.Guidelines = append([]string(nil), r.Evidence.Guidelines...)
		ev.RedFlags = append([]string(nil), r.Evidence.RedFlags...)
		ev.DifferentialDiagnosis = append([]string(nil), r.Evidence.DifferentialDiagnosis...)
		out.Evidence = &ev
	}
	out.ProposedReferrals = append([]Referral(nil), r.ProposedReferrals...)
	return out
}

// DiagnoseOptions are the caller-supplied knobs for one diagnosis.
type DiagnoseOptions struct {
	Model       string   `json:"model,omitempty"`
	SkipCache   bool     `json:"skipCache,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	RequestID   string   `json:"-"`
}

// CacheTier names where a cached answer came from.
type CacheTier string

const (
	CacheTierExact    CacheTier = "exact"
	CacheTierSemantic CacheTier = "semantic"
)

// OutcomeMetadata is populated on every outcome, success or not.
type OutcomeMetadata struct {
	FromCache   bool      `json:"fromCache"`
	Model       string    `json:"model,omitempty"`
	LatencyMs   int64     `json:"latencyMs"`
	Timestamp   int64     `json:"timestamp"`
	CacheTier   CacheTier `json:"cacheTier,omitempty"`
	Similarity  float64   `json:"similarity,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	PinnedModel string    `json:"pinnedModel,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
}

// DiagnosisOutcome is the only value the orchestrator hands back to the boundary.
type DiagnosisOutcome struct {
	Success   bool            `json:"success"`
	Data      *ICD10Result    `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind FailureKind     `json:"errorKind,omitempty"`
	Metadata  OutcomeMetadata `json:"metadata"`
}

// DiagnosisRequest is the HTTP body for the generate endpoint.
type DiagnosisRequest struct {
	Query   string           `json:"query"`
	Options *DiagnoseOptions `json:"options,omitempty"`
}
