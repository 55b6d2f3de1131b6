package registry

import (
	"context"
	"testing"

	"github.com/oriys/fncore/internal/cache"
)

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	spec := r.Register(ctx, Spec{ID: "fn-1", Name: "greeter", Language: "javascript"})
	if spec.RegisteredAt == 0 {
		t.Fatal("expected RegisteredAt to be stamped")
	}

	got, ok := r.Get(ctx, "fn-1")
	if !ok {
		t.Fatal("expected to find registered spec")
	}
	if got.Name != "greeter" {
		t.Fatalf("got name %q, want %q", got.Name, "greeter")
	}
}

func TestGetUnknownReturnsFalse(t *testing.T) {
	r := New(nil)
	if _, ok := r.Get(context.Background(), "missing"); ok {
		t.Fatal("expected ok=false for unknown id")
	}
}

func TestListReturnsAllSpecs(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, Spec{ID: "a", Name: "a-fn"})
	r.Register(ctx, Spec{ID: "b", Name: "b-fn"})

	specs := r.List()
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
}

func TestRegistryWithCacheServesFromCache(t *testing.T) {
	r := New(cache.NewInMemoryCache())
	ctx := context.Background()

	r.Register(ctx, Spec{ID: "fn-1", Name: "greeter"})
	if _, ok := r.Get(ctx, "fn-1"); !ok {
		t.Fatal("expected to find spec via cache-fronted registry")
	}
	// Second read should be served from the cache populated by the first Get.
	got, ok := r.Get(ctx, "fn-1")
	if !ok || got.Name != "greeter" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}
