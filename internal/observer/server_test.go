package observer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/topology"
)

type fakeSource struct {
	table aggregate.Table
	topo  *topology.Topology
}

func (f *fakeSource) CurrentAggregates() aggregate.Table { return f.table }
func (f *fakeSource) Topology() *topology.Topology       { return f.topo }
func (f *fakeSource) Status() overlay.Status {
	return overlay.Status{ID: "R", State: overlay.StateActive, Epoch: f.topo.Epoch()}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	topo, err := topology.Build([]string{"R", "I", "S", "L1", "L2", "L3"}, 2)
	require.NoError(t, err)

	d1, err := aggregate.NewDistribution(0.01, 5)
	require.NoError(t, err)
	d2, err := aggregate.NewDistribution(0.01, 3)
	require.NoError(t, err)

	src := &fakeSource{
		topo: topo,
		table: aggregate.Table{
			"iters": {Name: "iters", Value: 8, Policy: aggregate.PolicySum, Contributors: 2,
				LastUpdate: 42, Origin: "L1", Distribution: d1.Merge(d2),
				Seen: []string{"L1", "L2"}, Values: map[string]uint64{"L2": 3, "L1": 5}},
			"peak": {Name: "peak", Value: 30, Policy: aggregate.PolicyMax, Contributors: 1, Origin: "L2"},
		},
	}
	ts := httptest.NewServer(New(src).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, v any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, v), "body: %s", body)
	}
	return resp.StatusCode
}

func TestAggregates(t *testing.T) {
	ts := newTestServer(t)

	var all []EntryView
	require.Equal(t, http.StatusOK, get(t, ts, "/aggregates", &all))
	require.Len(t, all, 2)
	assert.Equal(t, "iters", all[0].Name)
	assert.Equal(t, "peak", all[1].Name)

	var one EntryView
	require.Equal(t, http.StatusOK, get(t, ts, "/aggregates/iters", &one))
	assert.Equal(t, uint64(8), one.Value)
	assert.Equal(t, uint32(2), one.Contributors)
	assert.Equal(t, aggregate.PolicySum, one.Policy)
	require.NotNil(t, one.Distribution)
	assert.Equal(t, float64(2), one.Distribution.Count)

	assert.Equal(t, http.StatusNotFound, get(t, ts, "/aggregates/missing", nil))
}

func TestKeysAndCount(t *testing.T) {
	ts := newTestServer(t)

	var keys []string
	require.Equal(t, http.StatusOK, get(t, ts, "/keys", &keys))
	assert.Equal(t, []string{"iters", "peak"}, keys)

	var count map[string]int
	require.Equal(t, http.StatusOK, get(t, ts, "/count", &count))
	assert.Equal(t, 6, count["count"])
}

func TestHist(t *testing.T) {
	ts := newTestServer(t)

	var h HistView
	require.Equal(t, http.StatusOK, get(t, ts, "/hist/iters", &h))
	assert.Equal(t, "iters", h.Name)
	assert.Equal(t, float64(2), h.Count)
	assert.InDelta(t, 3, h.Min, 0.1)
	assert.InDelta(t, 5, h.Max, 0.1)

	// No distribution, and no such name.
	assert.Equal(t, http.StatusNotFound, get(t, ts, "/hist/peak", nil))
	assert.Equal(t, http.StatusNotFound, get(t, ts, "/hist/missing", nil))
}

func TestValues(t *testing.T) {
	ts := newTestServer(t)

	var v ValuesView
	require.Equal(t, http.StatusOK, get(t, ts, "/values/iters", &v))
	assert.Equal(t, "iters", v.Name)
	assert.Equal(t, aggregate.PolicySum, v.Policy)
	assert.Equal(t, []OriginValue{{Origin: "L1", Value: 5}, {Origin: "L2", Value: 3}}, v.Values)

	require.Equal(t, http.StatusOK, get(t, ts, "/values/peak", &v))
	assert.Empty(t, v.Values)

	assert.Equal(t, http.StatusNotFound, get(t, ts, "/values/missing", nil))
}

func TestEscapedNames(t *testing.T) {
	topo, err := topology.Build([]string{"R"}, 2)
	require.NoError(t, err)
	src := &fakeSource{topo: topo, table: aggregate.Table{
		"rng/samples": {Name: "rng/samples", Value: 4, Policy: aggregate.PolicySum, Contributors: 1, Origin: "R",
			Values: map[string]uint64{"R": 4}},
		"queue depth": {Name: "queue depth", Value: 9, Policy: aggregate.PolicyMax, Contributors: 1, Origin: "R"},
	}}
	ts := httptest.NewServer(New(src).Handler())
	t.Cleanup(ts.Close)

	var one EntryView
	require.Equal(t, http.StatusOK, get(t, ts, "/aggregates/rng%2Fsamples", &one))
	assert.Equal(t, "rng/samples", one.Name)

	require.Equal(t, http.StatusOK, get(t, ts, "/aggregates/queue%20depth", &one))
	assert.Equal(t, uint64(9), one.Value)

	var v ValuesView
	require.Equal(t, http.StatusOK, get(t, ts, "/values/rng%2Fsamples", &v))
	assert.Equal(t, []OriginValue{{Origin: "R", Value: 4}}, v.Values)
}

func TestTopology(t *testing.T) {
	ts := newTestServer(t)

	var v TopologyView
	require.Equal(t, http.StatusOK, get(t, ts, "/topology", &v))
	assert.Equal(t, uint64(1), v.Epoch)
	assert.Equal(t, 2, v.FanOut)
	assert.Equal(t, 2, v.Depth)
	require.Len(t, v.Members, 6)
	assert.Equal(t, NodeView{ID: "L3", Parent: "S", Level: 2, Role: topology.RoleLeaf}, v.Members[5])
	assert.Equal(t, "", v.Members[0].Parent)
}

func TestStatusHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	var st map[string]any
	require.Equal(t, http.StatusOK, get(t, ts, "/status", &st))
	assert.Equal(t, "R", st["id"])
	assert.Equal(t, "active", st["state"])

	assert.Equal(t, http.StatusOK, get(t, ts, "/healthz", nil))
	assert.Equal(t, http.StatusOK, get(t, ts, "/metrics", nil))

	resp, err := http.Post(ts.URL+"/keys", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
