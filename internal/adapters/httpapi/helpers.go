package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	accountHeader = "X-Account"
	maxBodyBytes  = 1 << 20
)

type envelope map[string]any

// readJSON decodes a single JSON object from the body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("%w: badly-formed JSON at character %d", domain.ErrInvalidParameters, syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: badly-formed JSON", domain.ErrInvalidParameters)
		case errors.As(err, &typeErr):
			return fmt.Errorf("%w: wrong JSON type for field %q", domain.ErrInvalidParameters, typeErr.Field)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: body must not be empty", domain.ErrInvalidParameters)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("%w: unknown key %s", domain.ErrInvalidParameters, strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", domain.ErrInvalidParameters, maxBodyBytes)
		default:
			return fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON value", domain.ErrInvalidParameters)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		slog.Error("encode response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(js, '\n'))
}

// statusOf maps the error taxonomy to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindStateConflict, domain.KindResource:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError responde con {"error": {"code", "message"}}. Los errores
// internos no exponen su mensaje.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "the server encountered a problem and could not process your request"
	}
	writeJSON(w, status, envelope{"error": envelope{"code": domain.CodeOf(err), "message": msg}})
}

var errNoAccount = fmt.Errorf("%w: missing %s header", domain.ErrNotAuthorized, accountHeader)

// caller returns the account the request acts for.
func caller(r *http.Request) (string, error) {
	acc := strings.TrimSpace(r.Header.Get(accountHeader))
	if acc == "" {
		return "", errNoAccount
	}
	return acc, nil
}

// bearer returns the capability token, or "" when absent.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

func squadParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad squad id %q", domain.ErrInvalidParameters, chi.URLParam(r, "id"))
	}
	return id, nil
}
