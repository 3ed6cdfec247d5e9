// Package httpx holds the JSON plumbing shared by every handler.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
	"exam-system/pkg/logger"
)

type errorBody struct {
	Error   apperr.Kind         `json:"error"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as a JSON envelope. Internal errors are logged and their
// detail withheld from the client.
func Error(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	JSON(w, e.Status(), errorBody{Error: e.Kind, Message: e.Error(), Fields: e.Fields})
}

func Decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("malformed JSON body: " + err.Error())
	}
	return nil
}

// ID parses a numeric path variable.
func ID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Field(name, "must be a positive integer")
	}
	return uint(id), nil
}

// QueryID parses an optional numeric query parameter; absent yields 0.
func QueryID(r *http.Request, name string) (uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Field(name, "must be a positive integer")
	}
	return uint(id), nil
}

// Caller returns the authenticated identity placed on the request by the auth middleware.
func Caller(r *http.Request) (identity.Identity, error) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		return identity.Identity{}, apperr.Unauthenticated("authentication required")
	}
	return id, nil
}
