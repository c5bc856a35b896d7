package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/middleware"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/models/dto"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/validation"
)

const (
	msgBadLogin        = "Invalid email or password"
	msgEmailTaken      = "Email already registered"
	msgAccountTaken    = "Account already registered"
	msgRoleNotAllowed  = "Role cannot be self-assigned"
	msgPasswordTooLong = "Password must be at most 72 bytes"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// AuthHandler owns local and federated registration/login.
type AuthHandler struct {
	users    storage.UserStore
	tokens   *auth.TokenManager
	resolver middleware.Resolver
	verifier auth.FederatedVerifier
	validate *validation.Validator
	logger   *slog.Logger
}

// AuthDeps are the collaborators of AuthHandler. Verifier may be nil.
type AuthDeps struct {
	Users     storage.UserStore
	Tokens    *auth.TokenManager
	Resolver  middleware.Resolver
	Verifier  auth.FederatedVerifier
	Validator *validation.Validator
	Logger    *slog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(deps AuthDeps) *AuthHandler {
	return &AuthHandler{
		users:    deps.Users,
		tokens:   deps.Tokens,
		resolver: deps.Resolver,
		verifier: deps.Verifier,
		validate: deps.Validator,
		logger:   deps.Logger,
	}
}

// Register attaches auth routes to the mux. Public routes go through limit,
// /me through protect.
func (h *AuthHandler) Register(mux *http.ServeMux, protect, limit Middleware) {
	mux.Handle("POST /api/auth/register", limit(http.HandlerFunc(h.handleRegister)))
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(h.handleLogin)))
	mux.Handle("POST /api/auth/firebase-register", limit(http.HandlerFunc(h.handleFirebaseRegister)))
	mux.Handle("POST /api/auth/firebase-login", limit(http.HandlerFunc(h.handleFirebaseLogin)))
	mux.Handle("GET /api/auth/me", protect(http.HandlerFunc(h.handleMe)))
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	if !models.SelfAssignable(strings.TrimSpace(req.Role)) {
		respond.Error(w, http.StatusForbidden, msgRoleNotAllowed)
		return
	}
	if len(req.Password) > maxPasswordBytes {
		respond.Error(w, http.StatusBadRequest, msgPasswordTooLong)
		return
	}
	passwordHash, err := hashPassword(req.Password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		respond.Error(w, http.StatusBadRequest, msgPasswordTooLong)
		return
	}
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	created, ok := h.create(w, r, models.User{
		Email:        normalizeEmail(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         roleOrDefault(req.Role),
		PasswordHash: passwordHash,
	}, msgEmailTaken)
	if !ok {
		return
	}
	h.issue(w, created, "User registered successfully")
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	user, err := h.users.FindByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, msgBadLogin)
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respond.Error(w, http.StatusBadRequest, msgBadLogin)
		return
	}
	h.issue(w, user, "login successful")
}

// handleFirebaseRegister links a federated account to a new user. When a
// verifier is configured the caller must present a federated token for the
// same uid.
func (h *AuthHandler) handleFirebaseRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.FirebaseRegisterRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	uid := strings.TrimSpace(req.FirebaseUID)
	if !models.SelfAssignable(strings.TrimSpace(req.Role)) {
		respond.Error(w, http.StatusForbidden, msgRoleNotAllowed)
		return
	}
	if h.verifier != nil {
		identity, err := h.verifier.VerifyToken(r.Context(), middleware.BearerToken(r))
		if err != nil || identity.UID != uid {
			h.logger.Info("federated registration rejected", "firebase_uid", uid, "error", err)
			respond.Error(w, http.StatusUnauthorized, middleware.MsgInvalidCredentials)
			return
		}
	}

	created, ok := h.create(w, r, models.User{
		Email:       normalizeEmail(req.Email),
		FullName:    strings.TrimSpace(req.FullName),
		Role:        roleOrDefault(req.Role),
		FirebaseUID: uid,
	}, msgAccountTaken)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "User registered successfully", dto.UserResponse{User: created})
}

func (h *AuthHandler) handleFirebaseLogin(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context(), middleware.BearerToken(r))
	if err != nil {
		middleware.WriteAuthError(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", dto.UserResponse{User: res.User})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", caller(r))
}

// create stores user, answering 400 with conflictMsg when the email or
// federated id is taken.
func (h *AuthHandler) create(w http.ResponseWriter, r *http.Request, user models.User, conflictMsg string) (models.User, bool) {
	created, err := h.users.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, conflictMsg)
		} else {
			h.logger.Error("create user failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, "failed to create user")
		}
		return models.User{}, false
	}
	return created, true
}

func (h *AuthHandler) issue(w http.ResponseWriter, user models.User, message string) {
	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.logger.Error("issue token failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respond.JSON(w, http.StatusOK, message, dto.TokenResponse{AccessToken: token, TokenType: "bearer", User: user})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func roleOrDefault(role string) string {
	if r := strings.TrimSpace(role); r != "" {
		return r
	}
	return models.RoleCRA
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
