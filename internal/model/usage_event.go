package model

import "time"

// UsageEvent is a single metered LLM call reported by a client SDK or proxy.
type UsageEvent struct {
	Timestamp time.Time      `json:"ts"`
	ProjectID string         `json:"project_id"`
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id,omitempty"`
	Route     string         `json:"route"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	TokensIn  int64          `json:"tokens_in"`
	TokensOut int64          `json:"tokens_out"`
	CostUSD   float64        `json:"cost_usd"`
	LatencyMS float64        `json:"latency_ms"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
