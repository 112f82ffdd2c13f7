package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/domain"
)

// KickedMessage is shown to a kicked participant.
const KickedMessage = "You have been kicked by an administrator"

const maxBodyBytes = 1 << 20

var validate = validator.New()

// decode reads a JSON body into dst and validates its struct tags. Both
// failures come back as *domain.ValidationError.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		verr := domain.NewValidationError("request")
		verr.AddError("invalid JSON body: " + err.Error())
		return verr
	}
	if err := validate.Struct(dst); err != nil {
		verr := domain.NewValidationError("request")
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.AddError(fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			verr.AddError(err.Error())
		}
		return verr
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps an error to its status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrKicked) {
		writeJSON(w, http.StatusForbidden, kickedResponse{Kicked: true, Message: KickedMessage})
		return
	}

	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

func classify(err error) (int, string) {
	var (
		verr   *domain.ValidationError
		aerr   *domain.AuthorizationError
		closed *domain.RoundClosedError
		perr   *domain.PersistenceError
		nf     *domain.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrInvalidRound), errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &aerr):
		if aerr.Action == "join" {
			return http.StatusUnauthorized, "Incorrect Competition Password"
		}
		return http.StatusUnauthorized, "Unauthorized"
	case errors.As(err, &closed):
		return http.StatusConflict, closed.Error()
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "Competition state changed, please retry"
	case errors.As(err, &perr):
		return http.StatusInternalServerError, "Failed to save submission"
	case errors.As(err, &nf):
		return http.StatusNotFound, nf.Error()
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
