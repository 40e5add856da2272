// jwks-mock — локальный издатель токенов для административного API techdir.
// Генерирует RSA-ключ при старте, отдаёт JWKS по GET /jwks и подписывает
// JWT со scope администратора по POST /token.
//
//	MOCK_PORT=9000 jwks-mock
//	TD_JWKS_URL=http://localhost:9000/jwks techdir serve
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/techdir/internal/api/errors"
	"github.com/bigkaa/techdir/internal/api/middleware"
)

const (
	keyID      = "techdir-dev-1"
	issuer     = "jwks-mock"
	defaultTTL = time.Hour
)

// mockConfig — настройки из переменных окружения.
type mockConfig struct {
	Port         string // MOCK_PORT (по умолчанию 9000)
	TLSCert      string // MOCK_TLS_CERT
	TLSKey       string // MOCK_TLS_KEY
	KeySize      int    // MOCK_KEY_SIZE (по умолчанию 2048)
	DefaultScope string // MOCK_SCOPE (по умолчанию techdir:admin)
}

func loadConfig() mockConfig {
	cfg := mockConfig{
		Port:         envOrDefault("MOCK_PORT", "9000"),
		TLSCert:      os.Getenv("MOCK_TLS_CERT"),
		TLSKey:       os.Getenv("MOCK_TLS_KEY"),
		KeySize:      2048,
		DefaultScope: envOrDefault("MOCK_SCOPE", "techdir:admin"),
	}
	if v := os.Getenv("MOCK_KEY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size >= 1024 {
			cfg.KeySize = size
		}
	}
	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// jwk — открытый RSA-ключ в формате RFC 7517.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func buildJWKS(pub *rsa.PublicKey) ([]byte, error) {
	return json.Marshal(map[string][]jwk{
		"keys": {{
			Kty: "RSA",
			Kid: keyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// tokenRequest — тело POST /token. Пустые scopes заменяются scope
// администратора по умолчанию.
type tokenRequest struct {
	Sub        string   `json:"sub"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// tokenIssuer подписывает токены одним ключом.
type tokenIssuer struct {
	key          *rsa.PrivateKey
	jwks         []byte
	defaultScope string
	now          func() time.Time
	logger       *slog.Logger
}

func newTokenIssuer(key *rsa.PrivateKey, defaultScope string, logger *slog.Logger) (*tokenIssuer, error) {
	jwks, err := buildJWKS(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации JWKS: %w", err)
	}
	return &tokenIssuer{
		key:          key,
		jwks:         jwks,
		defaultScope: defaultScope,
		now:          time.Now,
		logger:       logger,
	}, nil
}

func (s *tokenIssuer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", s.handleJWKS)
	r.Post("/token", s.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func (s *tokenIssuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.jwks)
}

func (s *tokenIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Sub == "" {
		apierrors.ValidationError(w, "Поле 'sub' обязательно")
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{s.defaultScope}
	}
	ttl := defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	token, err := s.sign(req.Sub, req.Scopes, ttl)
	if err != nil {
		s.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка генерации токена")
		return
	}

	s.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Any("scopes", req.Scopes),
		slog.String("ttl", ttl.String()),
	)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// sign выпускает RS256-токен в формате claims административного API.
func (s *tokenIssuer) sign(sub string, scopes []string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ScopeArray: scopes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(s.key)
}

func main() {
	cfg := loadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	logger.Info("Генерация RSA ключевой пары", slog.Int("key_size", cfg.KeySize))
	key, err := rsa.GenerateKey(rand.Reader, cfg.KeySize)
	if err != nil {
		logger.Error("Ошибка генерации RSA ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	issuerSvc, err := newTokenIssuer(key, cfg.DefaultScope, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           issuerSvc.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		logger.Info("jwks-mock запущен (HTTPS)", slog.String("addr", srv.Addr))
		err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
	} else {
		logger.Info("jwks-mock запущен (HTTP)", slog.String("addr", srv.Addr))
		err = srv.ListenAndServe()
	}
	if err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
