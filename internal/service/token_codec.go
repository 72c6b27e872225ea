package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
)

// TokenCodec encodes and decodes short-lived signed access tokens. Decoding
// fails closed: any malformed segment, signature mismatch, missing claim, or
// expiry collapses into a nil result. Callers that need the reason use
// DecodeStrict; everyone else treats nil as unauthorized.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
}

// NewTokenCodec constructs a codec for the given HS256 secret and access TTL.
func NewTokenCodec(secret string, ttl time.Duration, logger *zap.Logger) *TokenCodec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, logger: logger}
}

// Encode builds and signs an access token for the subject with a fresh jti.
func (c *TokenCodec) Encode(subjectID int64, role string) (string, *models.AccessTokenClaims, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(c.ttl)
	claims := &models.AccessTokenClaims{
		UserID: subjectID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// DecodeStrict parses and verifies an access token, surfacing the failure
// reason. Only HS256 is accepted; exp equal to now counts as expired.
func (c *TokenCodec) DecodeStrict(tokenString string) (*models.AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == 0 || claims.Role == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, errors.New("missing required claims")
	}
	if !claims.ExpiresAt.After(time.Now().UTC()) {
		return nil, jwt.ErrTokenExpired
	}
	return claims, nil
}

// Decode returns the verified claims or nil. Failures are logged at debug
// level only; the pass/fail contract is deliberate so that call sites treat
// every failure mode uniformly.
func (c *TokenCodec) Decode(tokenString string) *models.AccessTokenClaims {
	claims, err := c.DecodeStrict(tokenString)
	if err != nil {
		c.logger.Debug("access token rejected", zap.Error(err))
		return nil
	}
	return claims
}

// Validate reports whether the token decodes successfully.
func (c *TokenCodec) Validate(tokenString string) bool {
	return c.Decode(tokenString) != nil
}

// SubjectID extracts the subject id from a valid token.
func (c *TokenCodec) SubjectID(tokenString string) (int64, bool) {
	claims := c.Decode(tokenString)
	if claims == nil {
		return 0, false
	}
	return claims.UserID, true
}

// Role extracts the role from a valid token.
func (c *TokenCodec) Role(tokenString string) (string, bool) {
	claims := c.Decode(tokenString)
	if claims == nil {
		return "", false
	}
	return claims.Role, true
}
