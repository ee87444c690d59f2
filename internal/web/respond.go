package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/guard"
	"go.uber.org/zap"
)

type callerKey struct{}

// withCaller stores the identity from CallerHeader, or the anonymous identity, in the request context.
func withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(CallerHeader))
		if caller == "" {
			caller = domain.AnonymousIdentity
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// Caller returns the identity attached to ctx.
func Caller(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey{}).(string); ok {
		return caller
	}

	return domain.AnonymousIdentity
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := guard.AssertUser(Caller(r.Context())); err != nil {
			s.respondWithError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.admins.AssertAdmin(Caller(r.Context())); err != nil {
			s.respondWithError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal JSON response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func (s *Server) respondWithError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{Code: domain.CodeOf(err), Message: err.Error()}

	if status == http.StatusInternalServerError {
		s.logger.Error("unhandled service error", zap.Error(err))
		resp.Message = "internal error"
	}

	s.respondWithJSON(w, status, resp)
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		if domain.CodeOf(err) == domain.ErrAnonymousCaller.Code {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindInsufficientResource:
		return http.StatusPaymentRequired
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.respondWithError(w, domain.NewValidationError("invalid request body: "+err.Error()))
		return false
	}

	return true
}

func (s *Server) uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		s.respondWithError(w, domain.NewValidationError("invalid "+name))
		return 0, false
	}

	return v, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("invalid " + name)
	}

	return v, nil
}
