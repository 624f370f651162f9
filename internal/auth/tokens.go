// Package auth implements access and refresh token issuance and verification.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "inkwell-api"
	audience = "inkwell-client"
)

// Typed verification failures. Callers use ErrTokenExpired to decide whether
// a refresh attempt is worthwhile; everything else forces a re-login.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims are the validated claims of an access token.
type AccessClaims struct {
	UserID uint
	Role   string
}

// RefreshClaims are the validated claims of a refresh token.
type RefreshClaims struct {
	UserID uint
	JTI    string
}

// Issuer mints and verifies the two token kinds with distinct secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer returns a token issuer for the given secrets and lifetimes.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken mints a short-lived bearer token for the user.
func (i *Issuer) IssueAccessToken(userID uint, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": role,
		"iss":  issuer,
		"aud":  audience,
		"exp":  now.Add(i.accessTTL).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.accessSecret)
}

// IssueRefreshToken mints a refresh token with a random jti claim. The jti
// and expiry are returned so the caller can persist the token in the store.
func (i *Issuer) IssueRefreshToken(userID uint) (token, jti string, expiresAt time.Time, err error) {
	now := time.Now()
	jti = uuid.New().String()
	expiresAt = now.Add(i.refreshTTL)
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"jti": jti,
		"iss": issuer,
		"aud": audience,
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	return token, jti, expiresAt, err
}

// VerifyAccessToken validates signature and claims of an access token.
func (i *Issuer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims, err := i.verify(tokenString, i.accessSecret)
	if err != nil {
		return nil, err
	}

	userID, err := subjectUserID(claims)
	if err != nil {
		return nil, err
	}

	role, _ := claims["role"].(string)
	return &AccessClaims{UserID: userID, Role: role}, nil
}

// VerifyRefreshToken validates signature and claims of a refresh token.
func (i *Issuer) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims, err := i.verify(tokenString, i.refreshSecret)
	if err != nil {
		return nil, err
	}

	userID, err := subjectUserID(claims)
	if err != nil {
		return nil, err
	}

	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return nil, fmt.Errorf("%w: missing jti claim", ErrTokenInvalid)
	}
	return &RefreshClaims{UserID: userID, JTI: jti}, nil
}

func (i *Issuer) verify(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func subjectUserID(claims jwt.MapClaims) (uint, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, fmt.Errorf("%w: missing subject claim", ErrTokenInvalid)
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject claim", ErrTokenInvalid)
	}
	return uint(userID), nil
}
