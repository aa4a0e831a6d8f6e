package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
)

const (
	Issuer   = "cambridge-hub"
	Audience = "cambridge-hub/media_player"

	clockSkew = 5 * time.Second
)

// TokenUse separates short-lived access tokens from refresh tokens.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenUse     = errors.New("token used for the wrong purpose")
)

// TokenPair is handed out by the token subcommand.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type hubClaims struct {
	Name string   `json:"name,omitempty"`
	Use  TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// Tokens signs and checks the hub's HS256 bearer tokens.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokens reads the secret and lifetimes from cfg.
func NewTokens(cfg config.Config) *Tokens {
	return &Tokens{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second,
		refreshTTL: time.Duration(cfg.JWTRefreshTokenExpirySec) * time.Second,
		now:        time.Now,
	}
}

// Issue signs a fresh access and refresh token for client.
func (t *Tokens) Issue(client Client) (TokenPair, error) {
	if client.ID == "" {
		return TokenPair{}, ErrTokenInvalid
	}
	access, err := t.sign(client, UseAccess, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(client, UseRefresh, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: t.accessTTL}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (t *Tokens) Refresh(refreshToken string) (string, time.Duration, error) {
	client, err := t.Verify(refreshToken, UseRefresh)
	if err != nil {
		return "", 0, err
	}
	access, err := t.sign(client, UseAccess, t.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return access, t.accessTTL, nil
}

// Verify checks signature, issuer, audience and expiry and that the token was
// minted for use.
func (t *Tokens) Verify(token string, use TokenUse) (Client, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)

	claims := &hubClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Client{}, ErrTokenExpired
		}
		return Client{}, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return Client{}, ErrTokenInvalid
	}
	switch claims.Use {
	case use:
	case UseAccess, UseRefresh:
		return Client{}, ErrTokenUse
	default:
		return Client{}, ErrTokenInvalid
	}
	return Client{ID: claims.Subject, Name: claims.Name}, nil
}

func (t *Tokens) sign(client Client, use TokenUse, ttl time.Duration) (string, error) {
	now := t.now()
	claims := hubClaims{
		Name: client.Name,
		Use:  use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   client.ID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}
