// LensAI Event Sender Example
//
// This is a minimal example of how to sign and post a usage event to LensAI.
//
// Usage:
//   export LENSAI_URL="http://localhost:8000"
//   export WORKER_HMAC_SECRET="your_secret_here"   # leave unset if the API runs without one
//   go run main.go -project proj_123 -model gpt-4o-mini -tokens-in 120 -tokens-out 48 -cost 0.0021

package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

// UsageEvent is the body accepted by POST /v1/events.
type UsageEvent struct {
	Timestamp string         `json:"ts"`
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

func main() {
	var (
		project   = flag.String("project", "", "Project ID (required)")
		provider  = flag.String("provider", "openai", "LLM provider")
		model     = flag.String("model", "gpt-4o-mini", "Model name")
		route     = flag.String("route", "/chat", "Application route that made the call")
		tokensIn  = flag.Int64("tokens-in", 0, "Prompt tokens")
		tokensOut = flag.Int64("tokens-out", 0, "Completion tokens")
		cost      = flag.Float64("cost", 0, "Cost in USD")
		latency   = flag.Float64("latency-ms", 0, "Latency in milliseconds")
	)
	flag.Parse()

	if *project == "" {
		log.Fatal("-project is required")
	}

	baseURL := os.Getenv("LENSAI_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	event := UsageEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ProjectID: *project,
		RequestID: newRequestID(),
		Route:     *route,
		Provider:  *provider,
		Model:     *model,
		TokensIn:  *tokensIn,
		TokensOut: *tokensOut,
		CostUSD:   *cost,
		LatencyMS: *latency,
		Status:    "ok",
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Fatalf("encode event: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if secret := os.Getenv("WORKER_HMAC_SECRET"); secret != "" {
		ts := time.Now().Unix()
		req.Header.Set("X-LensAI-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-LensAI-Signature", sign(secret, ts, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("send event: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d %s\n", resp.StatusCode, bytes.TrimSpace(respBody))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// sign computes the hex HMAC-SHA256 of "{timestamp}.{body}".
func sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return "req_" + hex.EncodeToString(b)
}
