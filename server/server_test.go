package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	recall "github.com/becomeliminal/recall"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/embedder/mock"
	"github.com/becomeliminal/recall/search"
	"github.com/becomeliminal/recall/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedExtractor struct {
	ops []core.Operation
}

func (f *fixedExtractor) Extract(ctx context.Context, messages []core.Message, existing []*core.Memory) ([]core.Operation, error) {
	return f.ops, nil
}

type quietJudge struct{}

func (quietJudge) CheckContradiction(ctx context.Context, existingText, candidateText, queryContext string) (bool, string) {
	return false, "no contradiction"
}

func (quietJudge) ApproveDeletion(ctx context.Context, memoryText, queryContext string) (bool, string) {
	return false, "not justified"
}

func newTestServer(extractor recall.Extractor) *Server {
	svc := recall.New(memstore.New(), search.NewIndex(mock.New()), extractor, quietJudge{}, nil)
	return New(svc)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAddMemories(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "Likes pizza"},
	}})

	w := doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "I like pizza"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	body := decode(t, w)
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}
	data := body["data"].(map[string]any)
	results := data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
}

func TestAddMemoriesValidation(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	w := doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"messages": []gin.H{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing user_id", w.Code)
	}
	if decode(t, w)["success"] != false {
		t.Error("error responses must set success=false")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	w := doJSON(t, s, http.MethodPost, "/v1/memories/search", gin.H{
		"user_id": "u1",
		"query":   "",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty query", w.Code)
	}
}

func TestSearchReturnsMatches(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "Has a dog named Max"},
	}})

	doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "I have a dog named Max"}},
	})

	w := doJSON(t, s, http.MethodPost, "/v1/memories/search", gin.H{
		"user_id": "u1",
		"query":   "Has a dog named Max",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	data := decode(t, w)["data"].(map[string]any)
	if data["count"].(float64) != 1 {
		t.Errorf("data = %v", data)
	}
}

func TestListRequiresUserID(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	w := doJSON(t, s, http.MethodGet, "/v1/memories", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMemoryLifecycle(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "Lives in California"},
	}})

	doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "I live in California"}},
	})

	w := doJSON(t, s, http.MethodGet, "/v1/memories?user_id=u1", nil)
	data := decode(t, w)["data"].(map[string]any)
	results := data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	id := results[0].(map[string]any)["id"].(string)

	// Read it back.
	w = doJSON(t, s, http.MethodGet, "/v1/memories/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	// Update the text.
	w = doJSON(t, s, http.MethodPut, "/v1/memories/"+id, gin.H{"text": "Lives in Texas"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	mem := decode(t, w)["data"].(map[string]any)
	if mem["memory"] != "Lives in Texas" {
		t.Errorf("updated memory = %v", mem)
	}

	// Delete it.
	w = doJSON(t, s, http.MethodDelete, "/v1/memories/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/v1/memories/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
}

func TestNotFoundResponses(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	if w := doJSON(t, s, http.MethodGet, "/v1/memories/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("get status = %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodPut, "/v1/memories/nope", gin.H{"text": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("put status = %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodDelete, "/v1/memories/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "Likes pizza"},
	}})

	doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "I like pizza"}},
	})

	w := doJSON(t, s, http.MethodDelete, "/v1/memories?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := decode(t, w)["data"].(map[string]any)
	if data["deleted"].(float64) != 1 {
		t.Errorf("data = %v", data)
	}

	if w := doJSON(t, s, http.MethodDelete, "/v1/memories", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", w.Code)
	}
}

func TestCleanupContradictions(t *testing.T) {
	s := newTestServer(&fixedExtractor{})

	w := doJSON(t, s, http.MethodPost, "/v1/memories/cleanup-contradictions?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	data := decode(t, w)["data"].(map[string]any)
	for _, key := range []string{"contradictions_resolved", "memories_before", "memories_after"} {
		if _, ok := data[key]; !ok {
			t.Errorf("response missing %s: %v", key, data)
		}
	}

	if w := doJSON(t, s, http.MethodPost, "/v1/memories/cleanup-contradictions", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", w.Code)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "fact one"},
		{Kind: core.OpAdd, Text: "fact two"},
		{Kind: core.OpAdd, Text: "fact three"},
	}})

	doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "three facts"}},
	})

	w := doJSON(t, s, http.MethodGet, "/v1/memories?user_id=u1&offset=1&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := decode(t, w)["data"].(map[string]any)
	if data["total"].(float64) != 3 {
		t.Errorf("total = %v, want 3", data["total"])
	}
	results := data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v, want one page entry", results)
	}
	if text := results[0].(map[string]any)["memory"]; text != "fact two" {
		t.Errorf("page entry = %v, want second-oldest fact", text)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(&fixedExtractor{ops: []core.Operation{
		{Kind: core.OpAdd, Text: "Likes pizza"},
	}})

	doJSON(t, s, http.MethodPost, "/v1/memories", gin.H{
		"user_id":  "u1",
		"messages": []gin.H{{"role": "user", "content": "I like pizza"}},
	})

	w := doJSON(t, s, http.MethodGet, "/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := decode(t, w)["data"].(map[string]any)
	if data["users"].(float64) != 1 || data["memories"].(float64) != 1 {
		t.Errorf("data = %v", data)
	}
}
