package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/coffersTech/ruleast/internal/engine"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/coffersTech/ruleast/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		syntax   *ruleql.SyntaxError
		ident    *ruleql.UnknownIdentifierError
		operator *ruleql.UnknownOperatorError
		nodeType *ruleql.UnknownNodeTypeError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.As(err, &syntax),
		errors.Is(err, ruleql.ErrEmptyInput),
		errors.Is(err, engine.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateName):
		return http.StatusConflict
	case errors.As(err, &ident),
		errors.As(err, &operator),
		errors.As(err, &nodeType),
		errors.Is(err, ruleql.ErrMalformedTree):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status for err. Internal errors are logged and not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed (request %s): %v", r.Method, r.URL.Path, r.Header.Get(RequestIDHeader), err)
		writeMessage(w, status, "Internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}
