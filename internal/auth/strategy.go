package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
)

// Strategy names, also used as metric labels.
const (
	StrategyFederatedVerified   = "federated-verified"
	StrategyFederatedUnverified = "federated-unverified"
	StrategyLocalSession        = "local-session"
)

// Strategy attempts to map a bearer credential onto a user.
//
// TryResolve returns ok=true with the user on a match. ok=false with a nil error
// means "not mine, try the next strategy"; a non-nil error is a definite
// rejection reason that the resolver reports if nothing else matches.
type Strategy interface {
	Name() string
	Verified() bool
	TryResolve(ctx context.Context, credential string) (models.User, bool, error)
}

// FederatedStrategy resolves credentials that a trust authority verifies.
type FederatedStrategy struct {
	verifier FederatedVerifier
	users    storage.UserStore
	logger   *slog.Logger
}

func NewFederatedStrategy(verifier FederatedVerifier, users storage.UserStore, logger *slog.Logger) *FederatedStrategy {
	return &FederatedStrategy{verifier: verifier, users: users, logger: orDefault(logger)}
}

func (s *FederatedStrategy) Name() string   { return StrategyFederatedVerified }
func (s *FederatedStrategy) Verified() bool { return true }

func (s *FederatedStrategy) TryResolve(ctx context.Context, credential string) (models.User, bool, error) {
	if s.verifier == nil {
		return models.User{}, false, nil
	}
	identity, err := s.verifier.VerifyToken(ctx, credential)
	if err != nil {
		s.logger.Debug("federated verification failed", "error", err)
		return models.User{}, false, nil
	}
	return lookupFederated(ctx, s.users, s.logger, identity.UID)
}

// IntrospectionStrategy reads the payload of a federated token without checking
// its signature. Anything it returns is attacker-controllable unless the token
// was verified elsewhere, so resolutions are flagged as unverified.
type IntrospectionStrategy struct {
	users        storage.UserStore
	issuerDomain string
	now          func() time.Time
	logger       *slog.Logger
}

func NewIntrospectionStrategy(users storage.UserStore, issuerDomain string, logger *slog.Logger) *IntrospectionStrategy {
	if issuerDomain == "" {
		issuerDomain = FirebaseIssuerDomain
	}
	return &IntrospectionStrategy{users: users, issuerDomain: issuerDomain, now: time.Now, logger: orDefault(logger)}
}

func (s *IntrospectionStrategy) Name() string   { return StrategyFederatedUnverified }
func (s *IntrospectionStrategy) Verified() bool { return false }

func (s *IntrospectionStrategy) TryResolve(ctx context.Context, credential string) (models.User, bool, error) {
	uid, err := s.federatedSubject(credential)
	if err != nil || uid == "" {
		return models.User{}, false, nil
	}
	user, ok, err := lookupFederated(ctx, s.users, s.logger, uid)
	if ok {
		s.logger.Warn("caller resolved from unverified federated token", "user_id", user.ID, "firebase_uid", uid)
	}
	return user, ok, err
}

// federatedSubject extracts the federated uid from an unverified token payload:
// user_id when present, otherwise sub when iss belongs to the federated domain.
// A payload whose exp has passed is ignored.
func (s *IntrospectionStrategy) federatedSubject(credential string) (string, error) {
	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return "", errors.New("not a three-part token")
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	var payload struct {
		UserID  string   `json:"user_id"`
		Subject string   `json:"sub"`
		Issuer  string   `json:"iss"`
		Expiry  *float64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("parse payload: %w", err)
	}
	if payload.Expiry != nil && s.now().Unix() >= int64(*payload.Expiry) {
		return "", ErrTokenExpired
	}
	if payload.UserID != "" {
		return payload.UserID, nil
	}
	if payload.Subject != "" && strings.Contains(payload.Issuer, s.issuerDomain) {
		return payload.Subject, nil
	}
	return "", nil
}

func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}

func lookupFederated(ctx context.Context, users storage.UserStore, logger *slog.Logger, uid string) (models.User, bool, error) {
	user, err := users.FindByFederatedID(ctx, uid)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Error("federated user lookup failed", "error", err)
		}
		return models.User{}, false, nil
	}
	return user, true, nil
}

// SessionStrategy resolves locally issued session tokens.
type SessionStrategy struct {
	tokens *TokenManager
	users  storage.UserStore
}

func NewSessionStrategy(tokens *TokenManager, users storage.UserStore) *SessionStrategy {
	return &SessionStrategy{tokens: tokens, users: users}
}

func (s *SessionStrategy) Name() string   { return StrategyLocalSession }
func (s *SessionStrategy) Verified() bool { return true }

func (s *SessionStrategy) TryResolve(ctx context.Context, credential string) (models.User, bool, error) {
	claims, err := s.tokens.Verify(credential)
	if err != nil {
		return models.User{}, false, err
	}
	if claims.Subject == "" {
		return models.User{}, false, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, false, ErrUserNotFound
		}
		return models.User{}, false, err
	}
	return user, true, nil
}
