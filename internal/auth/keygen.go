package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: lk_{env}_{prefix}_{secret}
// Example: lk_live_7a9f3c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	KeyPrefixLen = 6
	KeySecretLen = 32
)

// Key environments.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the presented key does not match the lk_ format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")

	keyFormatRegex = regexp.MustCompile(`^lk_(live|test)_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedKey holds a freshly minted key. Plaintext is shown once and never stored.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// GenerateAPIKey mints a key for env, defaulting to live for unknown values.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	return GenerateAPIKeyWithParams(env, DefaultParams)
}

// GenerateAPIKeyWithParams mints a key and hashes it with p.
func GenerateAPIKeyWithParams(env string, p Params) (*GeneratedKey, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := fmt.Sprintf("lk_%s_%s_%s", env, prefix, secret)

	hash, err := HashKeyWithParams(plaintext, p)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ParsedKey contains the components of a plaintext key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// ParseAPIKey splits a plaintext key into its components.
func ParseAPIKey(key string) (*ParsedKey, error) {
	m := keyFormatRegex.FindStringSubmatch(key)
	if m == nil {
		return nil, ErrInvalidKeyFormat
	}

	return &ParsedKey{
		Env:    m[1],
		Prefix: m[2],
		Secret: m[3],
	}, nil
}

// ValidateKeyFormat reports whether key is a well-formed lk_ key.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
