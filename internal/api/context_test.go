package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/fieldsync/internal/schema"
	"github.com/hyperengineering/fieldsync/internal/types"
)

func TestWithTable_TableFromContext_RoundTrip(t *testing.T) {
	tips, _ := schema.Lookup(types.TableTips)
	ctx := WithTable(context.Background(), tips)

	got, err := TableFromContext(ctx)
	if err != nil {
		t.Fatalf("TableFromContext failed: %v", err)
	}
	if got.Name != types.TableTips {
		t.Errorf("table = %q, want %q", got.Name, types.TableTips)
	}
}

func TestTableFromContext_NoTable(t *testing.T) {
	_, err := TableFromContext(context.Background())
	if !errors.Is(err, ErrNoTableInContext) {
		t.Errorf("err = %v, want ErrNoTableInContext", err)
	}
}

func TestMustTableFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic without table in context")
		}
	}()
	MustTableFromContext(context.Background())
}

func TestTableMiddleware(t *testing.T) {
	var resolved string
	r := chi.NewRouter()
	r.Route("/tables/{table}", func(r chi.Router) {
		r.Use(TableMiddleware)
		r.Get("/rows", func(w http.ResponseWriter, r *http.Request) {
			resolved = MustTableFromContext(r.Context()).Name
		})
	})

	// Given: A known table
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/scans/rows", nil))

	// Then: It is resolved into the context
	if w.Code != http.StatusOK || resolved != types.TableScans {
		t.Errorf("status = %d, resolved = %q", w.Code, resolved)
	}

	// Given: An unknown table
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/plants/rows", nil))

	// Then: 404 Problem Details
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
