package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey_Envs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env        string
		wantPrefix string
	}{
		{EnvLive, "lk_live_"},
		{EnvTest, "lk_test_"},
		{"", "lk_live_"},
		{"prod", "lk_live_"},
	}

	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			t.Parallel()

			key, err := GenerateAPIKeyWithParams(tt.env, cheapParams)
			if err != nil {
				t.Fatalf("GenerateAPIKeyWithParams failed: %v", err)
			}
			if !strings.HasPrefix(key.Plaintext, tt.wantPrefix) {
				t.Errorf("Key should start with %s, got: %s", tt.wantPrefix, key.Plaintext)
			}
			if !ValidateKeyFormat(key.Plaintext) {
				t.Errorf("Generated key has invalid format: %s", key.Plaintext)
			}
			if len(key.Prefix) != KeyPrefixLen {
				t.Errorf("Prefix should be %d chars, got: %d", KeyPrefixLen, len(key.Prefix))
			}

			parsed, err := ParseAPIKey(key.Plaintext)
			if err != nil {
				t.Fatalf("ParseAPIKey failed: %v", err)
			}
			if parsed.Prefix != key.Prefix {
				t.Errorf("Parsed prefix %q != generated prefix %q", parsed.Prefix, key.Prefix)
			}

			ok, err := VerifyKey(key.Plaintext, key.Hash)
			if err != nil || !ok {
				t.Errorf("Generated hash should verify: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	t.Parallel()

	const numKeys = 50
	seen := make(map[string]bool, numKeys)

	for i := 0; i < numKeys; i++ {
		key, err := GenerateAPIKeyWithParams(EnvLive, cheapParams)
		if err != nil {
			t.Fatalf("GenerateAPIKeyWithParams failed: %v", err)
		}
		if seen[key.Plaintext] {
			t.Fatalf("Duplicate key at iteration %d", i)
		}
		seen[key.Plaintext] = true
	}
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		key        string
		wantEnv    string
		wantPrefix string
		wantErr    error
	}{
		{name: "valid live key", key: "lk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantEnv: "live", wantPrefix: "abc123"},
		{name: "valid test key", key: "lk_test_def456_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantEnv: "test", wantPrefix: "def456"},
		{name: "foreign scheme", key: "pk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "wrong env", key: "lk_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "short prefix", key: "lk_live_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "short secret", key: "lk_live_abc123_4f8d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "long secret", key: "lk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1bx", wantErr: ErrInvalidKeyFormat},
		{name: "uppercase hex", key: "lk_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B", wantErr: ErrInvalidKeyFormat},
		{name: "empty", key: "", wantErr: ErrInvalidKeyFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseAPIKey(tt.key)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("ParseAPIKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				if ValidateKeyFormat(tt.key) {
					t.Errorf("ValidateKeyFormat(%q) = true, want false", tt.key)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseAPIKey(%q) unexpected error: %v", tt.key, err)
			}
			if parsed.Env != tt.wantEnv {
				t.Errorf("Env = %s, want %s", parsed.Env, tt.wantEnv)
			}
			if parsed.Prefix != tt.wantPrefix {
				t.Errorf("Prefix = %s, want %s", parsed.Prefix, tt.wantPrefix)
			}
		})
	}
}
