package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/pkg/models"
)

var (
	errNotActivated = errors.New("user not activated")
	errBanned       = errors.New("user is banned")
	errBlacklisted  = errors.New("token is blacklisted")
)

// Authenticator turns a bearer token into a client.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Client, error)
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	config    config.JWTConfig
	prefix    string
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	redis     *redis.Client
	logger    logging.Logger
	now       func() time.Time
}

var _ Authenticator = (*JWTValidator)(nil)

// Claims represents JWT token claims issued by the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator fetches the login server's public key and keeps it fresh
// until ctx is done. redisClient may be nil, which skips the blacklist check.
func NewJWTValidator(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger logging.Logger) (*JWTValidator, error) {
	v := newJWTValidator(cfg, redisClient, logger)
	if err := v.RefreshPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	go v.periodicKeyRefresh(ctx)

	v.logger.Info("jwt validator initialized", "issuer", cfg.JWT.Issuer)
	return v, nil
}

func newJWTValidator(cfg *config.Config, redisClient *redis.Client, logger logging.Logger) *JWTValidator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JWTValidator{
		config: cfg.JWT,
		prefix: cfg.Redis.BlacklistPrefix,
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// RefreshPublicKey fetches the PEM-encoded ECDSA public key.
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.PublicKeyURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build key request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}
	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := parsePublicKey(keyData)
	if err != nil {
		return err
	}
	v.setKey(key)
	v.logger.Info("public key refreshed", "url", v.config.PublicKeyURL)
	return nil
}

func parsePublicKey(pemData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

func (v *JWTValidator) setKey(key *ecdsa.PublicKey) {
	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()
}

func (v *JWTValidator) periodicKeyRefresh(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(v.config.PublicKeyRefreshHrs) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				v.logger.Warn("failed to refresh public key", "error", err)
			}
		}
	}
}

// Authenticate validates a JWT and returns the client it names.
func (v *JWTValidator) Authenticate(ctx context.Context, tokenString string) (*models.Client, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		return v.publicKey, nil
	}, jwt.WithIssuer(v.config.Issuer), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	client := &models.Client{
		ID:          strconv.FormatInt(claims.UserID, 10),
		Username:    claims.Username,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
	}
	if client.IsBanned() {
		return nil, errBanned
	}
	if !client.IsActive() {
		return nil, errNotActivated
	}

	if v.redis != nil {
		n, err := v.redis.Exists(ctx, v.prefix+client.ID).Result()
		if err != nil {
			// Don't fail authentication if Redis is down.
			v.logger.Warn("failed to check blacklist", "user", client.ID, "error", err)
		} else if n > 0 {
			return nil, errBlacklisted
		}
	}
	return client, nil
}

// anonymousAuth admits every connection. It is used when no public key URL
// is configured.
type anonymousAuth struct{}

func (anonymousAuth) Authenticate(context.Context, string) (*models.Client, error) {
	id := "anon-" + uuid.NewString()
	return &models.Client{ID: id, Username: id, Activated: 1}, nil
}

// extractTokenFromHeader extracts the JWT from a websocket upgrade request.
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := splitProtocols(protocols)
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}

	// Query parameter (less secure, but supported)
	return r.URL.Query().Get("token")
}

func splitProtocols(protocols string) []string {
	var out []string
	for _, p := range strings.Split(protocols, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
