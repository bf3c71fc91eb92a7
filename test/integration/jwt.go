package integration

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer     = "https://issuer.test"
	testAudience   = "formbase"
	testSigningKey = "integration-test-signing-key-0123"
)

// TestClaims holds the configurable claims for generating test tokens.
type TestClaims struct {
	SubjectID string
	SpaceID   string
	Extra     map[string]any
}

// SpaceClaims returns claims for an ordinary user of the given space.
func SpaceClaims(space string) TestClaims {
	return TestClaims{SubjectID: "user-" + space, SpaceID: space}
}

// GenerateToken signs a token the harness's server accepts.
func (h *TestHarness) GenerateToken(tc TestClaims) string {
	h.t.Helper()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	if tc.SubjectID != "" {
		claims["sub"] = tc.SubjectID
	}
	if tc.SpaceID != "" {
		claims["space_id"] = tc.SpaceID
	}
	for k, v := range tc.Extra {
		claims[k] = v
	}
	return signHS256(h.t, testSigningKey, claims)
}

func signHS256(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
