package cache

import (
	"context"
	"testing"
	"time"

	"github.com/lensai/lensai/internal/model"
)

func TestHashIP_Deterministic(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"

	hash1 := hashIP(ip)
	hash2 := hashIP(ip)

	if hash1 != hash2 {
		t.Error("Same IP should produce same hash")
	}
}

func TestHashIP_Length(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
	}{
		{"IPv4", "192.168.1.1"},
		{"IPv4 localhost", "127.0.0.1"},
		{"IPv6 localhost", "::1"},
		{"IPv6 full", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash := hashIP(tt.ip)
			// hashIP uses first 8 bytes of SHA256, encoded as 16 hex chars
			if len(hash) != 16 {
				t.Errorf("hashIP(%q) length = %d, want 16", tt.ip, len(hash))
			}
		})
	}
}

func TestHashIP_Different(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip1  string
		ip2  string
	}{
		{"different IPv4", "192.168.1.1", "192.168.1.2"},
		{"different last octet", "10.0.0.1", "10.0.0.2"},
		{"IPv4 vs IPv6", "127.0.0.1", "::1"},
		{"public vs private", "8.8.8.8", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash1 := hashIP(tt.ip1)
			hash2 := hashIP(tt.ip2)

			if hash1 == hash2 {
				t.Errorf("Different IPs should produce different hashes: %q and %q both produced %s", tt.ip1, tt.ip2, hash1)
			}
		})
	}
}

func TestCheckRateLimit_ZeroRateIsUnlimited(t *testing.T) {
	t.Parallel()

	// No Redis round trip happens for a disabled limit.
	c := &Cache{}

	api, err := c.CheckAPIRateLimit(context.Background(), "key", 0, 50)
	if err != nil || !api.Allowed || api.Remaining != 50 {
		t.Errorf("CheckAPIRateLimit(rate=0) = %+v, %v", api, err)
	}

	ip, err := c.CheckIPRateLimit(context.Background(), "127.0.0.1", 0, 10)
	if err != nil || !ip.Allowed || ip.Remaining != 10 {
		t.Errorf("CheckIPRateLimit(rate=0) = %+v, %v", ip, err)
	}
}

func TestAuthContextTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name    string
		expires *time.Time
		want    time.Duration
	}{
		{"no expiry", nil, authCacheTTL},
		{"expires after ttl", at(time.Hour), authCacheTTL},
		{"expires within ttl", at(90 * time.Second), 90 * time.Second},
		{"already expired", at(-time.Second), -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := authContextTTL(&model.AuthContext{KeyID: "k", ExpiresAt: tt.expires}, now)
			if got != tt.want {
				t.Errorf("authContextTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}
