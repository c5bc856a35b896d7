// Package handlers implements the HTTP API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/validation"
)

// Middleware wraps a handler, typically with authentication.
type Middleware func(http.Handler) http.Handler

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v *validation.Validator, dst any) bool {
	if err := respond.Decode(w, r, dst); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			respond.Error(w, http.StatusBadRequest, verr.Error())
			return false
		}
		respond.Error(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

// caller returns the user placed on the context by the auth middleware.
func caller(r *http.Request) models.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}
