package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// MaxOverrideTokenTTL bounds the lifetime IssueOverrideToken accepts.
const MaxOverrideTokenTTL = 24 * time.Hour

// OverrideClaims are the claims of an admin override token. The subject is
// the employee ID.
type OverrideClaims struct {
	TenantID string `json:"tid"`
	// ClientEventID optionally pins the token to one submission.
	ClientEventID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// OverrideVerifier checks HS256 override tokens signed with the tenant's
// override secret.
type OverrideVerifier struct {
	leeway time.Duration
	now    func() time.Time
}

// NewOverrideVerifier creates a verifier allowing leeway of clock skew.
func NewOverrideVerifier(leeway time.Duration) *OverrideVerifier {
	return &OverrideVerifier{leeway: leeway, now: time.Now}
}

// Verify checks token for event e. The token must be signed with the
// tenant's secret, unexpired, and name e's tenant and employee.
func (v *OverrideVerifier) Verify(token string, e *domain.AttendanceEvent, policy domain.TenantPolicy) (*OverrideClaims, error) {
	if token == "" {
		return nil, domain.ErrOverrideTokenInvalid.WithDetails("empty token")
	}
	if policy.OverrideSecret == "" {
		return nil, domain.ErrOverrideTokenInvalid.WithDetails("overrides not enabled for tenant")
	}

	claims := &OverrideClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(policy.OverrideSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, domain.ErrOverrideTokenInvalid.WithCause(err)
	}

	switch {
	case claims.TenantID != e.TenantID:
		return nil, domain.ErrOverrideTokenInvalid.WithDetails("tenant mismatch")
	case claims.Subject != e.EmployeeID:
		return nil, domain.ErrOverrideTokenInvalid.WithDetails("employee mismatch")
	case claims.ClientEventID != "" && claims.ClientEventID != e.ClientEventID:
		return nil, domain.ErrOverrideTokenInvalid.WithDetails("client event mismatch")
	}
	return claims, nil
}

// IssueOverrideToken signs an override token. clientEventID may be empty
// to cover any submission by the employee until expiry.
func IssueOverrideToken(secret, tenantID, employeeID, clientEventID string, ttl time.Duration) (string, error) {
	if secret == "" || tenantID == "" || employeeID == "" {
		return "", domain.ErrMissingArgument.WithDetails("secret, tenant and employee are required")
	}
	if ttl <= 0 || ttl > MaxOverrideTokenTTL {
		return "", domain.ErrInvalidArgument.WithDetails("ttl must be within (0, 24h]")
	}
	now := time.Now()
	claims := OverrideClaims{
		TenantID:      tenantID,
		ClientEventID: clientEventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
