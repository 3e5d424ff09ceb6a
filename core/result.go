package core

// ResultStatus categorizes the outcome of an agent run.
type ResultStatus string

const (
	// StatusSuccess indicates the run produced content and terminated normally.
	StatusSuccess ResultStatus = "success"
	// StatusError indicates the run failed; Text carries the error description.
	StatusError ResultStatus = "error"
	// StatusEmptyResponse indicates the run terminated normally without content.
	StatusEmptyResponse ResultStatus = "empty_response"
)

// AgentResult is the terminal outcome of one agent run. Meta is an open
// key/value bag for callers (round counts, citations, timings).
type AgentResult struct {
	Text      string         `json:"text"`
	Status    ResultStatus   `json:"status"`
	Meta      map[string]any `json:"meta,omitempty"`
	AgentName string         `json:"agent_name"`
}

// ErrorResult builds an error-status result for the named agent.
func ErrorResult(agentName string, err error) *AgentResult {
	return &AgentResult{
		Text:      err.Error(),
		Status:    StatusError,
		AgentName: agentName,
	}
}
