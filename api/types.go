package api

// QueryRequest is the investigation request body
type QueryRequest struct {
	Question   string `json:"question"`
	TimeWindow string `json:"time_window,omitempty"`
}

// QueryResponse is the investigation result payload
type QueryResponse struct {
	InvestigationID string           `json:"investigation_id"`
	Status          string           `json:"status"`
	RootCause       string           `json:"root_cause,omitempty"`
	Explanation     string           `json:"explanation,omitempty"`
	ExplanationHTML string           `json:"explanation_html,omitempty"`
	Confidence      float64          `json:"confidence"`
	ConfidenceLevel string           `json:"confidence_level,omitempty"`
	LowConfidence   bool             `json:"low_confidence,omitempty"`
	Insufficient    bool             `json:"insufficient_evidence,omitempty"`
	StepsTaken      int              `json:"steps_taken"`
	Evidence        []EvidenceItem   `json:"evidence,omitempty"`
	Hypotheses      []HypothesisItem `json:"hypotheses,omitempty"`
	Error           *ErrorDetail     `json:"error,omitempty"`
}

// EvidenceItem is one finding in the response
type EvidenceItem struct {
	Kind         string `json:"kind"`
	Significance string `json:"significance"`
	Service      string `json:"service,omitempty"`
	Summary      string `json:"summary"`
}

// HypothesisItem is one ranked hypothesis in the response
type HypothesisItem struct {
	Description     string  `json:"description"`
	Status          string  `json:"status"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidence_level"`
}

// ErrorDetail carries the failure category and message
type ErrorDetail struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ErrorBody wraps an error-only response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}
