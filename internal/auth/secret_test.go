package auth

import (
	"strings"
	"testing"
)

func TestGenerateAccessCode(t *testing.T) {
	t.Run("returns non-empty code and hash", func(t *testing.T) {
		code, hash, err := GenerateAccessCode()
		if err != nil {
			t.Fatalf("GenerateAccessCode() error: %v", err)
		}
		if code == "" {
			t.Error("GenerateAccessCode() returned empty code")
		}
		if hash == "" {
			t.Error("GenerateAccessCode() returned empty hash")
		}
	})

	t.Run("two calls produce different codes", func(t *testing.T) {
		code1, _, _ := GenerateAccessCode()
		code2, _, _ := GenerateAccessCode()
		if code1 == code2 {
			t.Error("GenerateAccessCode() produced identical codes on consecutive calls")
		}
	})

	t.Run("generated code verifies against its hash", func(t *testing.T) {
		code, hash, err := GenerateAccessCode()
		if err != nil {
			t.Fatalf("GenerateAccessCode() error: %v", err)
		}
		if !VerifySecret(code, hash) {
			t.Error("VerifySecret() returned false for freshly generated code")
		}
	})
}

func TestGenerateAPIKey(t *testing.T) {
	t.Run("key starts with configured prefix", func(t *testing.T) {
		key, _, _, err := GenerateAPIKey("drm_")
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if !strings.HasPrefix(key, "drm_") {
			t.Errorf("GenerateAPIKey() key = %q, want prefix %q", key, "drm_")
		}
	})

	t.Run("lookup prefix matches key start", func(t *testing.T) {
		key, _, lookupPrefix, err := GenerateAPIKey("drm_")
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if !strings.HasPrefix(key, lookupPrefix) {
			t.Errorf("key %q does not start with lookupPrefix %q", key, lookupPrefix)
		}
		if len(lookupPrefix) != KeyPrefixLength {
			t.Errorf("lookupPrefix len = %d, want %d", len(lookupPrefix), KeyPrefixLength)
		}
	})

	t.Run("LookupPrefix of the full key equals the stored prefix", func(t *testing.T) {
		key, _, lookupPrefix, err := GenerateAPIKey("drm_")
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if got := LookupPrefix(key); got != lookupPrefix {
			t.Errorf("LookupPrefix(key) = %q, want %q", got, lookupPrefix)
		}
	})

	t.Run("two calls produce different keys", func(t *testing.T) {
		key1, _, _, _ := GenerateAPIKey("drm_")
		key2, _, _, _ := GenerateAPIKey("drm_")
		if key1 == key2 {
			t.Error("GenerateAPIKey() produced identical keys on consecutive calls")
		}
	})
}

func TestVerifySecret(t *testing.T) {
	t.Run("correct key validates", func(t *testing.T) {
		key, hash, _, err := GenerateAPIKey("drm_")
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if !VerifySecret(key, hash) {
			t.Error("VerifySecret() returned false for correct key")
		}
	})

	t.Run("wrong key does not validate", func(t *testing.T) {
		_, hash, _, err := GenerateAPIKey("drm_")
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if VerifySecret("drm_wrongkey", hash) {
			t.Error("VerifySecret() returned true for wrong key")
		}
	})

	t.Run("hash of a different secret does not validate", func(t *testing.T) {
		code, _, err := GenerateAccessCode()
		if err != nil {
			t.Fatalf("GenerateAccessCode() error: %v", err)
		}
		_, otherHash, err := GenerateAccessCode()
		if err != nil {
			t.Fatalf("GenerateAccessCode() error: %v", err)
		}
		if VerifySecret(code, otherHash) {
			t.Error("VerifySecret() returned true against another secret's hash")
		}
	})

	t.Run("malformed hash returns false not panic", func(t *testing.T) {
		if VerifySecret("anything", "not-a-bcrypt-hash") {
			t.Error("VerifySecret() returned true for malformed hash")
		}
	})

	t.Run("empty hash returns false", func(t *testing.T) {
		if VerifySecret("anything", "") {
			t.Error("VerifySecret() returned true for empty hash")
		}
	})
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer drm_abc123", "drm_abc123", false},
		{"empty header", "", "", true},
		{"missing bearer prefix", "drm_abc123", "", true},
		{"bearer with empty credential", "Bearer ", "", true},
		{"bearer with whitespace credential", "Bearer    ", "", true},
		{"trims surrounding whitespace", "Bearer   drm_abc123  ", "drm_abc123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearer(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
