package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role,omitempty"`
}

// TokenVerifier defines the interface for token verification.
type TokenVerifier interface {
	Verify(tokenString string) (*Principal, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption customizes a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithIssuer requires tokens to carry the given "iss" claim. Issued tokens use it too.
func WithIssuer(iss string) VerifierOption { return func(v *JWTVerifier) { v.issuer = iss } }

// WithAudience requires tokens to carry the given "aud" claim.
func WithAudience(aud string) VerifierOption { return func(v *JWTVerifier) { v.audience = aud } }

// WithLeeway tolerates clock skew when checking exp/nbf.
func WithLeeway(d time.Duration) VerifierOption { return func(v *JWTVerifier) { v.leeway = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption { return func(v *JWTVerifier) { v.now = now } }

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the token and extracts the principal.
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	workspaceID := workspaceClaim(claims)
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace_id", ErrMissingClaim)
	}

	role, _ := claims["role"].(string)

	return &Principal{UserID: sub, WorkspaceID: workspaceID, Role: role}, nil
}

// workspaceClaim reads workspace_id from the top level or app_metadata.
func workspaceClaim(claims jwt.MapClaims) string {
	if ws, ok := claims["workspace_id"].(string); ok && ws != "" {
		return ws
	}
	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if ws, ok := meta["workspace_id"].(string); ok {
			return ws
		}
	}
	return ""
}

// Issue creates a signed token for p that expires after expiresIn. It is
// used for development and tests; production tokens come from the backend.
func (v *JWTVerifier) Issue(p Principal, expiresIn time.Duration) (string, error) {
	if p.UserID == "" || p.WorkspaceID == "" {
		return "", fmt.Errorf("%w: sub and workspace_id are required", ErrMissingClaim)
	}

	now := v.now()
	claims := jwt.MapClaims{
		"sub":          p.UserID,
		"workspace_id": p.WorkspaceID,
		"iat":          now.Unix(),
		"exp":          now.Add(expiresIn).Unix(),
	}
	if p.Role != "" {
		claims["role"] = p.Role
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
