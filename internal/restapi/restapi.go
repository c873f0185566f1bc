// Package restapi maps HTTP verbs and paths onto engine registry
// operations, serializing results and errors as JSON.
package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/drachenfels-de/ocie/internal/registry"
)

// Gateway wires a registry to an HTTP router.
type Gateway struct {
	reg *registry.Registry
	log zerolog.Logger
}

// New builds the REST gateway as a *mux.Router, ready to be served.
func New(reg *registry.Registry, log zerolog.Logger) *mux.Router {
	g := &Gateway{reg: reg, log: log}

	r := mux.NewRouter()
	r.Use(g.logMiddleware)
	r.NotFoundHandler = http.HandlerFunc(notFound)

	r.HandleFunc("/containers/{name}", g.handleCreate).Methods(http.MethodPut)
	r.HandleFunc("/containers/{name}", g.handleState).Methods(http.MethodGet)
	r.HandleFunc("/containers/{name}", g.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/containers/{name}/status", g.handleModify).Methods(http.MethodPut)
	r.HandleFunc("/containers/{name}/attach", g.handleAttach).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (g *Gateway) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		g.log.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("handled request")
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Container not found")
}

type errorMsg struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorMsg{Code: code, Message: message})
}

// engineErrorStatus maps an engine error onto an HTTP status code. A
// registry not-found miss is itself an engine error and is reported as
// 500, not 404: 404 is reserved for unmatched routes (see notFound
// above), not for lookup misses within a route.
func engineErrorStatus(err error) int {
	return http.StatusInternalServerError
}

func (g *Gateway) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := g.reg.Create(r.Context(), name); err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("create failed")
		writeError(w, engineErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	state, err := g.reg.State(r.Context(), name)
	if err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("state query failed")
		writeError(w, engineErrorStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := g.reg.Delete(r.Context(), name); err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("delete failed")
		writeError(w, engineErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// modifyBody is the request body for PUT /containers/<name>/status.
// Unknown fields are rejected rather than silently ignored.
type modifyBody struct {
	State string `json:"state"`
}

func (g *Gateway) handleModify(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var body modifyBody
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch body.State {
	case "paused":
		err = g.reg.Pause(r.Context(), name)
	case "running":
		err = g.reg.Resume(r.Context(), name)
	default:
		writeError(w, http.StatusBadRequest, "unknown state: "+body.State)
		return
	}

	if err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("modify failed")
		writeError(w, engineErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}
