package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	hostsvc "github.com/dodeca-dev/dodeca/services/host"
)

func TestContentResolverServesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewContentResolver(dir, nil)
	resp, body, err := r.ContentFetch(context.Background(), hostsvc.ContentRequest{Path: "/assets/app.css"})
	if err != nil {
		t.Fatalf("ContentFetch: %v", err)
	}
	if resp.NotFound {
		t.Fatal("expected file to be found")
	}
	if !resp.Immutable {
		t.Fatal("expected /assets/ path to be immutable")
	}
	if string(body) != "body{}" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestContentResolverNotFound(t *testing.T) {
	r := NewContentResolver(t.TempDir(), nil)
	resp, _, err := r.ContentFetch(context.Background(), hostsvc.ContentRequest{Path: "/missing.html"})
	if err != nil {
		t.Fatalf("ContentFetch: %v", err)
	}
	if !resp.NotFound {
		t.Fatal("expected not-found response")
	}
}

func TestContentResolverRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	r := NewContentResolver(dir, nil)
	resp, _, err := r.ContentFetch(context.Background(), hostsvc.ContentRequest{Path: "/../../etc/passwd"})
	if err != nil {
		t.Fatalf("ContentFetch: %v", err)
	}
	if !resp.NotFound {
		t.Fatal("expected traversal attempt to resolve as not-found")
	}
}

func TestContentResolverData(t *testing.T) {
	r := NewContentResolver(t.TempDir(), nil)
	r.SetData("build.version", []byte("42"))

	res, err := r.ResolveData(context.Background(), hostsvc.DataQuery{Key: "build.version"})
	if err != nil {
		t.Fatalf("ResolveData: %v", err)
	}
	if !res.Found || string(res.Value) != "42" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = r.ResolveData(context.Background(), hostsvc.DataQuery{Key: "missing"})
	if err != nil {
		t.Fatalf("ResolveData: %v", err)
	}
	if res.Found {
		t.Fatal("expected missing key to be not found")
	}
}
