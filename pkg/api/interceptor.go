package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

const authRealm = `Basic realm="Mosquitto Manager"`

// authenticate requires HTTP basic auth against the administrator
// accounts of the stored document. Viewers are limited to read-only
// requests.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			challenge(w)
			return
		}

		ip := clientIP(r)
		if s.logins.blocked(ip) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many failed logins, try again later"))
			return
		}

		doc, err := s.opts.Store.LoadDocument()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		admin, found := findAdministrator(doc, username)
		if !found || !security.VerifyAdminPassword(admin.PasswordHash, password) {
			log.WithComponent("api").Warn().
				Str("username", username).
				Str("remote", r.RemoteAddr).
				Msg("Rejected dashboard login")
			s.logins.fail(ip)
			challenge(w)
			return
		}

		if admin.Role != types.RoleAdmin && !isReadOnlyRequest(r) {
			writeError(w, http.StatusForbidden, errors.New("write operations require the admin role"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authRealm)
	http.Error(w, "Authentication required.", http.StatusUnauthorized)
}

func findAdministrator(doc *types.Document, username string) (types.Administrator, bool) {
	for _, a := range doc.Administrators {
		if a.Username == username {
			return a, true
		}
	}
	return types.Administrator{}, false
}

// isReadOnlyRequest reports whether the request cannot change state
func isReadOnlyRequest(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records request counts and latency per route pattern
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
