package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("token-verifier-test-secret-32b!!")

func TestJWTVerifier_RoundTrip(t *testing.T) {
	verifier := NewJWTVerifier(testSecret, WithIssuer("supportdesk"))

	token, err := verifier.Issue(Principal{UserID: "user-123", WorkspaceID: "ws-1", Role: "agent"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	p, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if p.UserID != "user-123" || p.WorkspaceID != "ws-1" || p.Role != "agent" {
		t.Errorf("Verify() = %+v", p)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{
			name: "wrong secret",
			token: func() string {
				token, _ := NewJWTVerifier([]byte("different-secret")).Issue(Principal{UserID: "u", WorkspaceID: "w"}, time.Hour)
				return token
			}(),
		},
		{
			name: "none algorithm",
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					"sub": "u", "workspace_id": "w", "exp": time.Now().Add(time.Hour).Unix(),
				})
				s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				return s
			}(),
		},
		{
			name: "wrong issuer",
			token: func() string {
				token, _ := NewJWTVerifier(testSecret, WithIssuer("someone-else")).Issue(Principal{UserID: "u", WorkspaceID: "w"}, time.Hour)
				return token
			}(),
		},
	}

	verifier = NewJWTVerifier(testSecret, WithIssuer("supportdesk"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := NewJWTVerifier(testSecret, WithClock(func() time.Time { return past }))
	token, err := issuer.Issue(Principal{UserID: "u", WorkspaceID: "w"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = NewJWTVerifier(testSecret).Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}

	if _, err := NewJWTVerifier(testSecret, WithLeeway(2*time.Hour)).Verify(token); err != nil {
		t.Errorf("Verify() with leeway error = %v", err)
	}
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestJWTVerifier_Claims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name          string
		claims        jwt.MapClaims
		wantErr       error
		wantWorkspace string
	}{
		{
			name:    "missing sub",
			claims:  jwt.MapClaims{"workspace_id": "ws", "exp": exp},
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing workspace",
			claims:  jwt.MapClaims{"sub": "u", "exp": exp},
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing exp",
			claims:  jwt.MapClaims{"sub": "u", "workspace_id": "ws"},
			wantErr: ErrInvalidToken,
		},
		{
			name:          "workspace in app_metadata",
			claims:        jwt.MapClaims{"sub": "u", "exp": exp, "app_metadata": map[string]any{"workspace_id": "ws-meta"}},
			wantWorkspace: "ws-meta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := verifier.Verify(signClaims(t, tt.claims))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if p.WorkspaceID != tt.wantWorkspace {
				t.Errorf("WorkspaceID = %q, want %q", p.WorkspaceID, tt.wantWorkspace)
			}
		})
	}
}

func TestJWTVerifier_IssueRequiresIdentity(t *testing.T) {
	_, err := NewJWTVerifier(testSecret).Issue(Principal{UserID: "u"}, time.Hour)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Issue() error = %v, want ErrMissingClaim", err)
	}
}
