package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hongminglow/cdms-be/internal/cache"
)

// FirebaseIssuerDomain identifies Firebase ID tokens by their issuer.
const FirebaseIssuerDomain = "securetoken.google.com"

const (
	defaultFirebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	certsCacheKey           = "firebase:certs"
	defaultCertsTTL         = time.Hour
)

// FederatedIdentity is what a trust authority vouches for.
type FederatedIdentity struct {
	UID   string
	Email string
}

// FederatedVerifier cryptographically verifies externally issued identity tokens.
type FederatedVerifier interface {
	VerifyToken(ctx context.Context, token string) (FederatedIdentity, error)
}

type firebaseClaims struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// FirebaseVerifierConfig configures FirebaseVerifier.
type FirebaseVerifierConfig struct {
	ProjectID  string
	CertsURL   string
	HTTPClient *http.Client
	// Certs caches the parsed signing keys between requests.
	Certs  *cache.Store
	Now    func() time.Time
	Logger *slog.Logger
}

// FirebaseVerifier checks Firebase ID tokens (RS256) against Google's published
// signing certificates, the project audience and the securetoken issuer.
type FirebaseVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	certs     *cache.Store
	now       func() time.Time
	logger    *slog.Logger
}

// NewFirebaseVerifier builds a verifier; ProjectID is required.
func NewFirebaseVerifier(cfg FirebaseVerifierConfig) (*FirebaseVerifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	if cfg.CertsURL == "" {
		cfg.CertsURL = defaultFirebaseCertsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Certs == nil {
		cfg.Certs = cache.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FirebaseVerifier{
		projectID: strings.TrimSpace(cfg.ProjectID),
		certsURL:  cfg.CertsURL,
		client:    cfg.HTTPClient,
		certs:     cfg.Certs,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// VerifyToken validates signature, audience, issuer, expiry and subject.
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, token string) (FederatedIdentity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer("https://"+FirebaseIssuerDomain+"/"+v.projectID),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	var claims firebaseClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		keys, err := v.signingKeys(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return FederatedIdentity{}, ErrTokenExpired
		}
		return FederatedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return FederatedIdentity{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return FederatedIdentity{UID: claims.Subject, Email: claims.Email}, nil
}

func (v *FirebaseVerifier) signingKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if cached, ok := v.certs.Get(certsCacheKey); ok {
		if keys, ok := cached.(map[string]*rsa.PublicKey); ok {
			return keys, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build certs request: %w", err)
	}
	res, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certs: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("fetch signing certs: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var pems map[string]string
	if err := json.NewDecoder(res.Body).Decode(&pems); err != nil {
		return nil, fmt.Errorf("decode signing certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			if v.logger != nil {
				v.logger.Warn("skipping unparsable firebase signing cert", "kid", kid, "error", err)
			}
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable firebase signing certs")
	}

	v.certs.Set(certsCacheKey, keys, maxAge(res.Header.Get("Cache-Control")))
	return keys, nil
}

// maxAge extracts max-age from a Cache-Control header.
func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if value, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultCertsTTL
}
