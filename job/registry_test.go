package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/jobmill/jobmill/job"
)

type reindexParams struct {
	TargetID string `json:"target_id"`
	Force    bool   `json:"force"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got reindexParams
	def := job.NewDefinition("reindex", func(_ context.Context, p reindexParams) (any, error) {
		got = p
		return nil, nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get("reindex")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	params, _ := json.Marshal(reindexParams{TargetID: "doc-17", Force: true})
	if _, err := h.Perform(context.Background(), params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetID != "doc-17" {
		t.Errorf("TargetID = %q, want %q", got.TargetID, "doc-17")
	}
	if !got.Force {
		t.Error("Force = false, want true")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("expected no handler for unregistered job")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()

	for _, name := range []string{"job-a", "job-b", "job-c"} {
		r.Register(job.Func{Name: name, Fn: func(_ context.Context, _ json.RawMessage) (any, error) {
			return nil, nil
		}})
	}

	names := r.Names()
	sort.Strings(names)
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d", len(names))
	}
	expected := []string{"job-a", "job-b", "job-c"}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-job", func(_ context.Context, _ reindexParams) (any, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return nil, nil
	}))

	h, _ := r.Get("typed-job")
	if _, err := h.Perform(context.Background(), []byte(`{invalid json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyParams(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-params", func(_ context.Context, _ struct{}) (any, error) {
		called = true
		return nil, nil
	}))

	h, _ := r.Get("no-params")
	if _, err := h.Perform(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty params")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.RegisterDefinition(r, job.NewDefinition("failing", func(_ context.Context, _ struct{}) (any, error) {
		return nil, want
	}))

	h, _ := r.Get("failing")
	_, err := h.Perform(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) (any, error) {
		return nil, errors.New("new")
	}))

	h, _ := r.Get("overwrite")
	_, err := h.Perform(context.Background(), nil)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestDefinition_Validate(t *testing.T) {
	def := job.NewDefinition("guarded", func(_ context.Context, _ reindexParams) (any, error) {
		return nil, nil
	})
	def.Validate = func(p reindexParams) bool { return p.TargetID != "" }

	h := job.AsHandler(def)
	v, ok := h.(job.Validator)
	if !ok {
		t.Fatal("expected typed handler to implement Validator")
	}

	good, _ := json.Marshal(reindexParams{TargetID: "doc-1"})
	if !v.Validate(good) {
		t.Error("expected valid params to pass")
	}

	bad, _ := json.Marshal(reindexParams{})
	if v.Validate(bad) {
		t.Error("expected empty TargetID to be rejected")
	}

	if v.Validate([]byte(`{broken`)) {
		t.Error("expected undecodable params to be rejected")
	}
}
