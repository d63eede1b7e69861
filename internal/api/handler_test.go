package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nidhogg/mnemo/internal/memory"
	"go.uber.org/zap"
)

// fakeEmbedder returns a constant vector, or fails on demand.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("provider down")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func newTestServer(t *testing.T, emb *fakeEmbedder) *httptest.Server {
	t.Helper()
	svc := memory.NewService(emb, zap.NewNop())
	h := NewHandler(svc, zap.NewNop())
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStoreAndRetrieveFlow(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/memories/episodic", map[string]interface{}{
		"title":        "deployed the model",
		"description":  "rolled out v2 to staging",
		"significance": 0.8,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("store episodic: expected 201, got %d", resp.StatusCode)
	}
	var created map[string]string
	decodeJSON(t, resp, &created)
	if created["episode_id"] == "" {
		t.Fatal("missing episode_id in response")
	}

	resp = postJSON(t, ts, "/api/memories/retrieve", map[string]interface{}{
		"query": "deployment",
		"limit": 5,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("retrieve: expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Results []memory.ScoredItem `json:"results"`
	}
	decodeJSON(t, resp, &result)
	if len(result.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(result.Results))
	}
	if result.Results[0].Item.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", result.Results[0].Item.AccessCount)
	}
}

func TestStoreEpisodicValidation(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/memories/episodic", map[string]interface{}{
		"description": "no title",
	})
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for empty title, got %d", resp.StatusCode)
	}
}

func TestEmbeddingFailureMapsToBadGateway(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{fail: true})

	resp := postJSON(t, ts, "/api/memories/semantic", map[string]interface{}{
		"name":       "gradient descent",
		"definition": "iterative optimization",
	})
	defer resp.Body.Close()
	if resp.StatusCode != 502 {
		t.Errorf("expected 502 for embedding failure, got %d", resp.StatusCode)
	}
}

func TestRetrieveEmptyStoreReturnsEmptyList(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/memories/retrieve", map[string]interface{}{"query": "anything"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Results []memory.ScoredItem `json:"results"`
	}
	decodeJSON(t, resp, &result)
	if len(result.Results) != 0 {
		t.Errorf("got %d results, want 0", len(result.Results))
	}
}

func TestConsolidateEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	for _, title := range []string{"E1", "E2"} {
		resp := postJSON(t, ts, "/api/memories/episodic", map[string]interface{}{
			"title":            title,
			"description":      "observed convolution behavior",
			"significance":     0.8,
			"related_concepts": []string{"CNN"},
		})
		resp.Body.Close()
	}

	resp := postJSON(t, ts, "/api/memories/consolidate", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary memory.ConsolidationSummary
	decodeJSON(t, resp, &summary)
	if summary.ConsolidatedCount != 1 {
		t.Errorf("consolidated = %d, want 1", summary.ConsolidatedCount)
	}
}

func TestForgetEndpointEmptyStore(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/memories/forget", map[string]interface{}{"threshold": 0.2})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary memory.ForgetSummary
	decodeJSON(t, resp, &summary)
	if summary.ForgottenCount != 0 || summary.RemainingCount != 0 {
		t.Errorf("summary = %+v, want zeroes", summary)
	}
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/sessions/focus-group", nil)
	if resp.StatusCode != 201 {
		t.Fatalf("create session: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/sessions/focus-group/attend", map[string]interface{}{
		"item_ref": "item-42",
		"weight":   0.95,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("attend: expected 200, got %d", resp.StatusCode)
	}
	var session memory.WorkingMemory
	decodeJSON(t, resp, &session)
	if session.FocusItem != "item-42" {
		t.Errorf("focus = %q, want item-42", session.FocusItem)
	}

	// Omitted weight defaults to full attention.
	resp = postJSON(t, ts, "/api/sessions/focus-group/attend", map[string]interface{}{
		"item_ref": "item-43",
	})
	decodeJSON(t, resp, &session)
	if session.AttentionWeights["item-43"] != 1.0 {
		t.Errorf("default weight = %v, want 1.0", session.AttentionWeights["item-43"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeEmbedder{})

	resp := postJSON(t, ts, "/api/memories/semantic", map[string]interface{}{
		"name":       "attention",
		"definition": "weighted context mixing",
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/memories/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	var stats memory.Stats
	decodeJSON(t, resp, &stats)
	if stats.TotalItems != 1 || stats.ByKind[memory.KindSemantic] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
