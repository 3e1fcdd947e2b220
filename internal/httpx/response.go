// Package httpx writes the JSON envelopes shared by every endpoint.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Status: StatusSuccess, Data: data})
}

// Message writes a success envelope carrying only a message.
func Message(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Status: StatusSuccess, Message: msg})
}

func Error(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Status: StatusError, Message: msg})
}

// Fail maps err onto the error envelope. Errors that are not *apperr.Error
// are logged and reduced to a generic 500.
func Fail(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	kind := apperr.KindOf(err)
	entry := log.WithFields(logrus.Fields{
		"request_id": chimw.GetReqID(r.Context()),
		"kind":       kind.String(),
	}).WithError(err)

	var ae *apperr.Error
	if !errors.As(err, &ae) || kind == apperr.KindInternal {
		entry.Error("request failed")
		Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if kind.Status() >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	Error(w, kind.Status(), ae.Message)
}

// MaxJSONBody caps JSON request bodies.
const MaxJSONBody = 1 << 20

// DecodeJSON decodes the request body into v, reading at most MaxJSONBody
// bytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return apperr.Wrap(apperr.KindValidation, "Request body too large", err)
		}
		return apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
	}
	return nil
}
