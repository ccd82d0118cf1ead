package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDims = 64

// bagOfWords hashes each lowercased word into one of testDims buckets, so
// texts sharing words get a high cosine score.
func bagOfWords(text string) []float32 {
	v := make([]float32, testDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;|#")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDims]++
	}
	return v
}

// embeddingServer is an OpenAI-compatible /embeddings endpoint.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": bagOfWords(text)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setup points the CLI at a temp SQLite file and the fake embedding server,
// and writes two documents into a docs directory.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	srv := embeddingServer(t)
	t.Setenv("STRATA_CONFIG", "")
	t.Setenv("STRATA_STORE_BACKEND", "sqlite")
	t.Setenv("STRATA_STORE_PATH", filepath.Join(dir, "strata.db"))
	t.Setenv("STRATA_EMBEDDING_PROVIDER", "openai")
	t.Setenv("STRATA_EMBEDDING_MODEL", "test-embedding")
	t.Setenv("STRATA_EMBEDDING_API_KEY", "sk-test")
	t.Setenv("STRATA_EMBEDDING_BASE_URL", srv.URL)
	t.Setenv("STRATA_EMBEDDING_DIMENSIONS", "64")
	t.Setenv("STRATA_PARENT_CHUNK_SIZE", "60")

	docs := filepath.Join(dir, "docs")
	os.MkdirAll(docs, 0o755)
	os.WriteFile(filepath.Join(docs, "a.md"), []byte(
		"The product color must be red and bright.\n\nStorage should be cool and dry."), 0o644)
	os.WriteFile(filepath.Join(docs, "b.txt"), []byte("Shipping happens every Monday morning."), 0o644)
	os.WriteFile(filepath.Join(docs, "logo.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644)
	return docs
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("strata %v: %v", args, err)
	}
	return out
}

func TestIndexQueryDeleteRoundTrip(t *testing.T) {
	docs := setup(t)

	out := mustRun(t, "index", docs)
	if !strings.Contains(out, "a.md") || !strings.Contains(out, "b.txt") {
		t.Errorf("index output missing sources:\n%s", out)
	}
	if strings.Contains(out, "logo.png") {
		t.Errorf("non-indexable file was indexed:\n%s", out)
	}

	var sources struct {
		Sources []struct {
			SourceID string `json:"source_id"`
			Count    int    `json:"count"`
		} `json:"sources"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "--format", "json", "sources", "--sort", "name")), &sources); err != nil {
		t.Fatalf("decode sources: %v", err)
	}
	if sources.Total != 2 || sources.Sources[0].SourceID != "a.md" || sources.Sources[0].Count != 2 {
		t.Fatalf("sources = %+v", sources)
	}

	var results []struct {
		ParentID string `json:"parent_id"`
		Text     string `json:"text"`
		Score    float32
		Matched  []struct {
			ChildID string `json:"child_id"`
		} `json:"matched_child_preview"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "--format", "json", "query", "-k", "2", "product color red")), &results); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if len(results) == 0 || !strings.Contains(results[0].Text, "color must be red") {
		t.Fatalf("query results = %+v", results)
	}
	if len(results[0].Matched) == 0 || !strings.HasPrefix(results[0].Matched[0].ChildID, results[0].ParentID+":") {
		t.Errorf("matched children = %+v", results[0].Matched)
	}

	out = mustRun(t, "query", "--children", "product color red")
	if !strings.Contains(out, "CHILD ID") || !strings.Contains(out, results[0].ParentID+":0") {
		t.Errorf("child query output:\n%s", out)
	}

	out = mustRun(t, "get", "--children", results[0].ParentID)
	if !strings.Contains(out, "Source:   a.md") || !strings.Contains(out, "Children (1)") {
		t.Errorf("get output:\n%s", out)
	}

	out = mustRun(t, "delete", "--source", "a.md")
	if !strings.Contains(out, "Deleted 2 parent(s) of a.md") {
		t.Errorf("delete output:\n%s", out)
	}
	out = mustRun(t, "list")
	if strings.Contains(out, "a.md") || !strings.Contains(out, "b.txt") {
		t.Errorf("list after delete:\n%s", out)
	}
	if _, err := run(t, "get", results[0].ParentID); err == nil {
		t.Error("get of deleted parent: want error")
	}
}

func TestReindexReplacesSource(t *testing.T) {
	docs := setup(t)
	mustRun(t, "index", docs)
	mustRun(t, "index", "--reindex", filepath.Join(docs, "a.md"))

	var listed struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "--format", "json", "list", "--source", "a.md")), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.Total != 2 {
		t.Errorf("parents of a.md after reindex = %d, want 2", listed.Total)
	}
}

func TestParentChildDisabledReturnsChildren(t *testing.T) {
	docs := setup(t)
	mustRun(t, "index", docs)
	t.Setenv("STRATA_ENABLE_PARENT_CHILD", "false")

	out := mustRun(t, "query", "shipping monday")
	if !strings.Contains(out, "CHILD ID") || !strings.Contains(out, "Shipping happens") {
		t.Errorf("query output:\n%s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	setup(t)
	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"--format", "yaml", "list"}},
		{"delete needs a target", []string{"delete"}},
		{"delete targets are exclusive", []string{"delete", "--source", "a", "--parent", "b"}},
		{"query needs text", []string{"query"}},
		{"non-positive top-k", []string{"query", "-k", "-1", "x"}},
		{"source needs one file", []string{"index", "--source", "x", t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("strata %v: want error", tt.args)
			}
		})
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	setup(t)
	t.Setenv("STRATA_STORE_BACKEND", "redis")
	if _, err := run(t, "list"); err == nil || !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("err = %v, want store.backend validation error", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"颜色要求红色鲜艳", 5, "颜色..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
