package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCollectAndRender(t *testing.T) {
	dir := t.TempDir()
	src := `package api

// @Title: Get Value
// @Route: GET /api/value?key=
// @Description: Returns a value
// @Response: {"key": "..."}
func A() {}

// @Title: Get Health
// @Route: GET /api/health
// @Description: Health
// @Response: {"status": "ok"}
func B() {}

// @Title: Incomplete
// @Response: ignored without a route
func C() {}
`
	if err := os.WriteFile(filepath.Join(dir, "handlers.go"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "handlers_test.go"), []byte("// @Title: T\n// @Route: GET /x\n// @Response: x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	endpoints, err := collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %+v", endpoints)
	}
	if endpoints[0].Route != "GET /api/health" {
		t.Fatalf("expected endpoints sorted by path, got %+v", endpoints)
	}

	var out strings.Builder
	if err := render(&out, endpoints); err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := out.String()
	for _, want := range []string{"= kvs HTTP API", "== Get Value", "`GET /api/value?key=`", `{"status": "ok"}`} {
		if !strings.Contains(doc, want) {
			t.Errorf("rendered doc missing %q:\n%s", want, doc)
		}
	}
}
