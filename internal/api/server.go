// Package api exposes the node's HTTP surface: apply, state, stats, and
// secret management, plus ambient /metrics and /healthz endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rezn-project/rezn/internal/apply"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/reconcile"
	"github.com/rezn-project/rezn/internal/secrets"
	"github.com/rezn-project/rezn/internal/stats"
	"github.com/rezn-project/rezn/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires every component into a gorilla/mux router.
type Server struct {
	kv          *store.Store
	applyEngine *apply.Engine
	coordinator *reconcile.Coordinator
	secrets     *secrets.Store
	ingester    *stats.Ingester
	fanout      *stats.FanOut
	log         *logrus.Entry
	validate    *validator.Validate

	metrics *metrics.Metrics
}

// Deps bundles the components a Server routes requests to.
type Deps struct {
	KV          *store.Store
	ApplyEngine *apply.Engine
	Coordinator *reconcile.Coordinator
	Secrets     *secrets.Store
	Ingester    *stats.Ingester
	FanOut      *stats.FanOut
	Log         *logrus.Entry
	Metrics     *metrics.Metrics
}

// New builds a Server routing to deps. If deps.Metrics is nil a fresh
// bundle is created. Its registry backs the /metrics route; its
// HTTPRequestsTotal counter records /apply and /state outcomes and every
// request that fails with a 500.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Server{
		kv:          deps.KV,
		applyEngine: deps.ApplyEngine,
		coordinator: deps.Coordinator,
		secrets:     deps.Secrets,
		ingester:    deps.Ingester,
		fanout:      deps.FanOut,
		log:         log,
		validate:    validator.New(),
		metrics:     m,
	}
}

// Router builds the mux.Router serving every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/apply", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/state/raw", s.handleStateRaw).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/ws", s.handleStatsWS).Methods(http.MethodGet)
	r.HandleFunc("/secrets", s.handleListSecrets).Methods(http.MethodGet)
	r.HandleFunc("/secrets", s.handleCreateSecret).Methods(http.MethodPost)
	r.HandleFunc("/secret", s.handleGetSecret).Methods(http.MethodGet)
	r.HandleFunc("/secret", s.handleDeleteSecret).Methods(http.MethodDelete)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.PathPrefix("/swagger").Handler(swaggerHandler())
	r.HandleFunc("/api/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, route string, err error) {
	s.log.WithError(err).WithField("route", route).Warn("request failed")
	s.metrics.HTTPRequestsTotal.WithLabelValues(route, "500").Inc()
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

type applyRequest struct {
	Name               string              `json:"name" validate:"required"`
	InstructionWrapper model.SignedProgram `json:"instruction_wrapper" validate:"required"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.applyEngine.Apply(req.Name, req.InstructionWrapper); err != nil {
		switch {
		case errorKindIs(err, model.ErrUnsupportedAlgorithm), errorKindIs(err, model.ErrDecode), errorKindIs(err, model.ErrSignature):
			s.metrics.HTTPRequestsTotal.WithLabelValues("/apply", "400").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.fail(w, "/apply", err)
		}
		return
	}

	if s.coordinator != nil {
		s.coordinator.Trigger()
	}

	s.metrics.HTTPRequestsTotal.WithLabelValues("/apply", "200").Inc()
	s.writeJSON(w, true)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	raw, err := s.kv.GetDesired("desired")
	if err != nil {
		if errorKindIs(err, model.ErrNotFound) {
			s.writeJSON(w, model.DesiredMap{})
			return
		}
		s.fail(w, "/state", err)
		return
	}
	var desired model.DesiredMap
	if err := json.Unmarshal(raw, &desired); err != nil {
		s.fail(w, "/state", err)
		return
	}
	s.metrics.HTTPRequestsTotal.WithLabelValues("/state", "200").Inc()
	s.writeJSON(w, desired)
}

func (s *Server) handleStateRaw(w http.ResponseWriter, r *http.Request) {
	raw, err := s.kv.GetDesired("desired")
	if err != nil {
		if errorKindIs(err, model.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{}"))
			return
		}
		s.fail(w, "/state/raw", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ingester.Snapshot())
}

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade stats websocket")
		return
	}
	defer conn.Close()

	ch := s.fanout.Subscribe()
	defer s.fanout.Unsubscribe(ch)

	for payload := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	keys, err := s.secrets.Keys()
	if err != nil {
		s.fail(w, "/secrets", err)
		return
	}
	s.writeJSON(w, keys)
}

type createSecretRequest struct {
	Name   string `json:"name" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req createSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.secrets.Put(req.Name, []byte(req.Secret)); err != nil {
		s.fail(w, "/secrets", err)
		return
	}
	s.writeJSON(w, true)
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	plaintext, err := s.secrets.Get(key)
	if err != nil {
		if errorKindIs(err, model.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.fail(w, "/secret", err)
		return
	}
	if !utf8.Valid(plaintext) {
		s.fail(w, "/secret", errNotUTF8)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(plaintext)
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	existed, err := s.secrets.Delete(key)
	if err != nil {
		s.fail(w, "/secret", err)
		return
	}
	if !existed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(false)
		return
	}
	s.writeJSON(w, true)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPIDocument))
}

func errorKindIs(err error, kind error) bool {
	opErr, ok := err.(*model.OpError)
	if !ok {
		return false
	}
	return opErr.Is(kind)
}

type staticError string

func (e staticError) Error() string { return string(e) }

const errNotUTF8 = staticError("secret value is not valid UTF-8")
