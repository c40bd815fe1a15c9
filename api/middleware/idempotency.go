package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/saffronhouse/orders-backend/api/responses"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	pkgredis "github.com/saffronhouse/orders-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	replayedHeader         = "Idempotent-Replayed"
	defaultIdempotencyTTL  = 24 * time.Hour
	paymentIdempotencyTTL  = 72 * time.Hour
	maxIdempotencyKeyBytes = 128
)

// Keyed by "METHOD pattern" using chi route patterns.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/orders":                         paymentIdempotencyTTL,
	"POST /api/payments/orders":                paymentIdempotencyTTL,
	"POST /api/orders/{orderId}/payment/retry": paymentIdempotencyTTL,
	"POST /api/orders/{orderId}/assign":        defaultIdempotencyTTL,
}

// storedResponse is what gets written to redis. Body round-trips through
// encoding/json as base64.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the stored response when a client resends a request
// with the same Idempotency-Key. Requests without the header pass through.
// Only non-5xx responses are stored so a retry after a server fault runs again.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	gate := &idempotencyGate{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			gate.serve(w, r, next, key, ttl)
		})
	}
}

type idempotencyGate struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func (g *idempotencyGate) serve(w http.ResponseWriter, r *http.Request, next http.Handler, key string, ttl time.Duration) {
	ctx := r.Context()
	if len(key) > maxIdempotencyKeyBytes {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
		return
	}

	body, err := bufferBody(w, r)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}

	fingerprint := fingerprintBody(body)
	redisKey := g.store.IdempotencyKey(callerScope(r), key)

	previous, err := g.lookup(r, redisKey)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if previous != nil {
		if previous.Fingerprint != fingerprint {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
			return
		}
		if g.logg != nil {
			g.logg.Info(g.logg.WithField(ctx, "idempotency_key", key), "idempotency.replayed")
		}
		previous.writeTo(w)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	g.remember(r, redisKey, ttl, capture, fingerprint)
}

func (g *idempotencyGate) lookup(r *http.Request, redisKey string) (*storedResponse, error) {
	raw, err := g.store.Get(r.Context(), redisKey)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func (g *idempotencyGate) remember(r *http.Request, redisKey string, ttl time.Duration, capture *responseCapture, fingerprint string) {
	status := capture.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		return
	}
	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		Fingerprint: fingerprint,
	})
	if err == nil {
		_, err = g.store.SetNX(r.Context(), redisKey, string(payload), ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(r.Context(), "persist idempotency record", err)
	}
}

func (s *storedResponse) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// callerScope keys public requests by client address and admin requests by
// staff id so two callers can never replay each other's responses.
func callerScope(r *http.Request) string {
	caller := StaffIDFromContext(r.Context())
	if caller == "" {
		caller = "ip:" + clientIP(r)
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	ttl, ok := idempotentRoutes[method+" "+strings.TrimRight(pattern, "/")]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
