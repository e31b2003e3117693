// Package observer serves the root's aggregates over HTTP.
//
// Routes:
//
//	GET /aggregates          all merged entries
//	GET /aggregates/{name}   one entry
//	GET /keys                sorted counter names
//	GET /hist/{name}         distribution summary of one name
//	GET /values/{name}       latest value per live origin of one name
//	GET /topology            current tree
//	GET /count               number of participants
//	GET /status              root node status
//	GET /healthz
//	GET /metrics             Prometheus
package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/topology"
)

var log = logging.Component("observer")

// Source is the node whose aggregates are served, normally the root.
type Source interface {
	CurrentAggregates() aggregate.Table
	Topology() *topology.Topology
	Status() overlay.Status
}

// Server is the observer HTTP server.
type Server struct {
	src Source
	mux *http.ServeMux
	srv *http.Server
}

// New creates a server for src. It does not listen until Serve or
// ListenAndServe is called.
func New(src Source) *Server {
	s := &Server{src: src, mux: http.NewServeMux()}

	s.handle("GET /aggregates", "aggregates", s.aggregates)
	s.handle("GET /aggregates/{name}", "aggregate", s.aggregate)
	s.handle("GET /keys", "keys", s.keys)
	s.handle("GET /hist/{name}", "hist", s.hist)
	s.handle("GET /values/{name}", "values", s.values)
	s.handle("GET /topology", "topology", s.topology)
	s.handle("GET /count", "count", s.count)
	s.handle("GET /status", "status", s.status)
	s.handle("GET /healthz", "healthz", s.healthz)
	s.mux.Handle("GET /metrics", telemetry.Instrument("metrics", telemetry.MetricsHandler()))

	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handle(pattern, op string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, telemetry.Instrument(op, fn))
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info("observer listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// =============================================================================
// Views
// =============================================================================

// EntryView is the JSON form of an aggregate entry.
type EntryView struct {
	Name         string             `json:"name"`
	Value        uint64             `json:"value"`
	Policy       aggregate.Policy   `json:"policy"`
	Contributors uint32             `json:"contributors"`
	LastUpdate   uint64             `json:"last_update"`
	Origin       string             `json:"origin,omitempty"`
	Distribution *aggregate.Summary `json:"distribution,omitempty"`
}

func viewOf(e aggregate.Entry) EntryView {
	v := EntryView{
		Name:         e.Name,
		Value:        e.Value,
		Policy:       e.Policy,
		Contributors: e.Contributors,
		LastUpdate:   e.LastUpdate,
		Origin:       e.Origin,
	}
	if e.Distribution != nil {
		sum := e.Distribution.Summary()
		v.Distribution = &sum
	}
	return v
}

// HistView is the JSON form of a name's distribution.
type HistView struct {
	Name         string `json:"name"`
	Contributors uint32 `json:"contributors"`
	aggregate.Summary
}

// OriginValue is one origin's latest value.
type OriginValue struct {
	Origin string `json:"origin"`
	Value  uint64 `json:"value"`
}

// ValuesView lists the per-origin values behind one aggregate, sorted by
// origin.
type ValuesView struct {
	Name   string           `json:"name"`
	Policy aggregate.Policy `json:"policy"`
	Values []OriginValue    `json:"values"`
}

// NodeView describes one member of the topology.
type NodeView struct {
	ID     string        `json:"id"`
	Parent string        `json:"parent,omitempty"`
	Level  int           `json:"level"`
	Role   topology.Role `json:"role"`
}

// TopologyView is the JSON form of the current tree.
type TopologyView struct {
	Epoch   uint64     `json:"epoch"`
	FanOut  int        `json:"fan_out"`
	Depth   int        `json:"depth"`
	Count   int        `json:"count"`
	Members []NodeView `json:"members"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) aggregates(w http.ResponseWriter, _ *http.Request) {
	t := s.src.CurrentAggregates()
	out := make([]EntryView, 0, len(t))
	for _, name := range t.Names() {
		out = append(out, viewOf(t[name]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	e, ok := s.src.CurrentAggregates()[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.src.CurrentAggregates().Names())
}

func (s *Server) hist(w http.ResponseWriter, r *http.Request) {
	e, ok := s.src.CurrentAggregates()[r.PathValue("name")]
	if !ok || e.Distribution == nil || e.Distribution.Count() == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, HistView{
		Name:         e.Name,
		Contributors: e.Contributors,
		Summary:      e.Distribution.Summary(),
	})
}

func (s *Server) values(w http.ResponseWriter, r *http.Request) {
	e, ok := s.src.CurrentAggregates()[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	view := ValuesView{Name: e.Name, Policy: e.Policy, Values: make([]OriginValue, 0, len(e.Values))}
	for origin, v := range e.Values {
		view.Values = append(view.Values, OriginValue{Origin: origin, Value: v})
	}
	sort.Slice(view.Values, func(i, j int) bool { return view.Values[i].Origin < view.Values[j].Origin })
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) topology(w http.ResponseWriter, _ *http.Request) {
	topo := s.src.Topology()
	if topo == nil {
		http.Error(w, "not attached", http.StatusServiceUnavailable)
		return
	}
	view := TopologyView{
		Epoch:  topo.Epoch(),
		FanOut: topo.FanOut(),
		Depth:  topo.Depth(),
		Count:  topo.Len(),
	}
	for _, id := range topo.Members() {
		parent, _ := topo.Parent(id)
		view.Members = append(view.Members, NodeView{
			ID:     id,
			Parent: parent,
			Level:  topo.Level(id),
			Role:   topo.Role(id),
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) count(w http.ResponseWriter, _ *http.Request) {
	n := 0
	if topo := s.src.Topology(); topo != nil {
		n = topo.Len()
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.src.Status())
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
