// Package httpx holds the JSON request/response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/apperr"
)

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrorDetail is the body of an error response, nested under "detail".
type ErrorDetail struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
}

type errorBody struct {
	Detail ErrorDetail `json:"detail"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err. Classified errors keep their kind's status and code; anything else is logged
// and rendered as a 500 internal_error.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.Error().Err(err).Msg("unclassified error")
		e = apperr.Internal(err)
	}
	if e.Kind == apperr.KindInternal || e.Kind == apperr.KindConfiguration {
		log.Error().Err(e).Str("code", e.Code).Msg("request failed")
	}
	detail := ErrorDetail{Error: e.Code, Message: e.Message}
	if e.RetryAfter > 0 || e.Kind == apperr.KindRateLimited || e.Kind == apperr.KindUpstreamRateLimited {
		n := e.RetryAfter
		detail.RetryAfterSeconds = &n
		w.Header().Set("Retry-After", strconv.Itoa(n))
	}
	WriteJSON(w, apperr.HTTPStatus(e.Kind), errorBody{Detail: detail})
}

// DecodeJSON decodes the request body into dst. An empty body decodes to the zero value
// when allowEmpty is true. Malformed bodies are validation errors.
func DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return apperr.New(apperr.KindValidation, "invalid_body", "Request body is required.")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return apperr.New(apperr.KindValidation, "invalid_body", "Request body is required.")
		}
		return apperr.Wrap(err, apperr.KindValidation, "invalid_body", "Request body must be valid JSON.")
	}
	return nil
}

// OK is the {"ok":true,"message":...} acknowledgement used by command endpoints.
type OK struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
