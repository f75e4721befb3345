package crypto

import (
	"strings"
	"testing"
)

func TestRandomTokenIsURLSafeAndUnique(t *testing.T) {
	first, err := RandomToken(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := RandomToken(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}
	if strings.ContainsAny(first, "+/=") {
		t.Fatalf("token is not URL safe: %q", first)
	}
}

func TestDigestTokenIsStable(t *testing.T) {
	if DigestToken("abc") != DigestToken("abc") {
		t.Fatalf("expected a stable digest")
	}
	if DigestToken("abc") == DigestToken("abd") {
		t.Fatalf("expected distinct digests for distinct tokens")
	}
	if len(DigestToken("abc")) != 64 {
		t.Fatalf("expected a hex sha-256 digest, got %q", DigestToken("abc"))
	}
}
