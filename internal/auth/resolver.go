package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hongminglow/cdms-be/internal/metrics"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
)

// Resolution is a resolved caller together with how it was established.
type Resolution struct {
	User     models.User
	Strategy string
	// Verified is false when the identity came from unverified token claims.
	Verified bool
}

// Resolver maps a bearer credential onto a user by trying strategies in order.
// It only reads; it never creates or modifies users.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver builds a resolver that tries strategies in the given order.
func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: orDefault(logger)}
}

// ResolverConfig wires the standard strategy chain.
type ResolverConfig struct {
	Users  storage.UserStore
	Tokens *TokenManager
	// Verifier is optional; nil skips verified federated resolution.
	Verifier FederatedVerifier
	// AllowUnverified enables payload introspection of federated tokens.
	AllowUnverified bool
	Logger          *slog.Logger
}

// NewDefaultResolver returns the federated-verified, federated-unverified,
// local-session chain.
func NewDefaultResolver(cfg ResolverConfig) *Resolver {
	var chain []Strategy
	if cfg.Verifier != nil {
		chain = append(chain, NewFederatedStrategy(cfg.Verifier, cfg.Users, cfg.Logger))
	}
	if cfg.AllowUnverified {
		chain = append(chain, NewIntrospectionStrategy(cfg.Users, FirebaseIssuerDomain, cfg.Logger))
	}
	chain = append(chain, NewSessionStrategy(cfg.Tokens, cfg.Users))
	return NewResolver(cfg.Logger, chain...)
}

// Resolve returns the caller identified by credential. Failures are one of
// ErrMissingCredential, ErrInvalidToken, ErrTokenExpired, ErrUserNotFound or a
// storage.ErrUnavailable wrap.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Resolution, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		metrics.RecordAuth("none", "missing")
		return Resolution{}, ErrMissingCredential
	}

	var lastErr error
	for _, s := range r.strategies {
		user, ok, err := s.TryResolve(ctx, credential)
		if ok {
			metrics.RecordAuth(s.Name(), "success")
			return Resolution{User: user, Strategy: s.Name(), Verified: s.Verified()}, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = ErrInvalidToken
	}
	metrics.RecordAuth("none", outcome(lastErr))
	r.logger.Debug("credential rejected", "reason", lastErr)
	return Resolution{}, lastErr
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrUserNotFound):
		return "unknown_user"
	case errors.Is(err, storage.ErrUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
