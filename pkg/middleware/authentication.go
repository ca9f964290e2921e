package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

const (
	HeaderUserID  = "X-User-ID"
	verifyTimeout = 5 * time.Second
	bearerPrefix  = "Bearer "
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is what the service needs from a verified token.
type Claims struct {
	Subject string
	Email   string
}

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Claims, error)
}

// OIDCVerifier checks ID tokens against an OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("%w: cannot parse claims: %v", ErrInvalidToken, err)
	}
	return Claims{Subject: claims.Sub, Email: claims.Email}, nil
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Claims{Subject: claims.Subject, Email: claims.Email}, nil
}

// GenerateJWT signs an HS256 token for subject. Used by tooling and tests.
func GenerateJWT(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserUUIDVerifier trusts the raw token as a user uuid. Only for AUTH_ENABLED=false.
type UserUUIDVerifier struct{}

func (UserUUIDVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: raw}, nil
}

type UserLookup interface {
	GetByUUID(ctx context.Context, userUUID string) (*models.User, error)
}

// Authenticator verifies a token and resolves its subject to a local user.
type Authenticator struct {
	verifier TokenVerifier
	users    UserLookup
	logger   ectologger.Logger
}

func NewAuthenticator(verifier TokenVerifier, users UserLookup, logger ectologger.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, users: users, logger: logger}
}

// Authenticate returns the caller behind token or a 401.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Caller, error) {
	ctx, span := tracing.StartSpan(ctx, "middleware.Authenticate")
	defer span.End()

	if token == "" {
		return models.Caller{}, httperror.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	claims, err := a.verifier.Verify(verifyCtx, token)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("token is invalid")
		return models.Caller{}, httperror.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	user, err := a.users.GetByUUID(ctx, claims.Subject)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusNotFound {
			return models.Caller{}, httperror.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}
		return models.Caller{}, err
	}

	return models.Caller{ID: user.ID, UUID: user.UUID, Privilege: user.PrivilegeID}, nil
}

// Authentication requires a bearer token on every request and stores the caller on the context.
func Authentication(auth *Authenticator) echo.MiddlewareFunc {
	return authenticate(auth, func(c echo.Context) string {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return ""
		}
		return strings.TrimPrefix(header, bearerPrefix)
	})
}

// TestAuth takes the caller's user uuid from the X-User-ID header.
// Only use this when AUTH_ENABLED=false.
func TestAuth(users UserLookup, logger ectologger.Logger) echo.MiddlewareFunc {
	auth := NewAuthenticator(UserUUIDVerifier{}, users, logger)
	return authenticate(auth, func(c echo.Context) string {
		return c.Request().Header.Get(HeaderUserID)
	})
}

func authenticate(auth *Authenticator, extract func(c echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			caller, err := auth.Authenticate(ctx, extract(c))
			if err != nil {
				return err
			}

			ctx = appctx.SetCaller(ctx, caller)
			ctx = appctx.SetUserID(ctx, caller.UUID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
