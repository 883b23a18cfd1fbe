// Package ingest accepts usage events over HTTP, queues them on a Redis stream
// and writes them to partitioned NDJSON files.
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Signature headers sent by event producers.
const (
	TimestampHeader = "X-LensAI-Timestamp"
	SignatureHeader = "X-LensAI-Signature"
)

// DefaultReplayWindow bounds the accepted clock skew of a signed request.
const DefaultReplayWindow = 5 * time.Minute

var (
	ErrMissingSignature     = errors.New("missing signature headers")
	ErrInvalidTimestamp     = errors.New("invalid signature timestamp")
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks signed ingest requests.
type Verifier struct {
	secret string
	window time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier. An empty secret disables verification.
func NewVerifier(secret string, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Verifier{secret: secret, window: window, now: time.Now}
}

// Enabled reports whether requests must be signed.
func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify validates the timestamp and signature header values against body.
func (v *Verifier) Verify(timestampHeader, signature string, body []byte) error {
	if !v.Enabled() {
		return nil
	}
	if timestampHeader == "" || signature == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(v.window.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := Sign(v.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
