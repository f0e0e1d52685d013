package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"lazytail/internal/filter"
)

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	mk := func(rel string) string {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	a := mk("a.log")
	b := mk("sub/b.log")
	mk("sub/c.txt")

	got, err := expandGlobs([]string{filepath.Join(dir, "**", "*.log")})
	if err != nil {
		t.Fatalf("expandGlobs: %v", err)
	}
	if want := []string{a, b}; !reflect.DeepEqual(got, want) {
		t.Errorf("expandGlobs = %v, want %v", got, want)
	}

	// Literal path, duplicated across patterns, appears once.
	got, err = expandGlobs([]string{a, a})
	if err != nil || len(got) != 1 {
		t.Errorf("literal path = %v, %v", got, err)
	}

	if _, err := expandGlobs([]string{filepath.Join(dir, "*.nope")}); err == nil {
		t.Error("expected an error for a pattern matching nothing")
	}
}

func TestCheckpointPath(t *testing.T) {
	if got := checkpointPath("", "/var/log/app.log"); got != "" {
		t.Errorf("empty dir should disable checkpoints, got %q", got)
	}

	a := checkpointPath("/tmp/cp", "/var/log/app.log")
	b := checkpointPath("/tmp/cp", "/var/log/other/app.log")
	if a == b {
		t.Error("different files mapped to the same checkpoint")
	}
	if !strings.HasPrefix(a, "/tmp/cp/") || !strings.HasSuffix(a, ".cp") {
		t.Errorf("unexpected checkpoint path %q", a)
	}
}

func TestResolveCheckpointDir(t *testing.T) {
	if got := resolveCheckpointDir(nil, "none"); got != "" {
		t.Errorf("none = %q, want empty", got)
	}
	if got := resolveCheckpointDir(nil, ""); got != "" {
		t.Errorf("empty = %q, want empty", got)
	}

	dir := filepath.Join(t.TempDir(), "cp")
	if got := resolveCheckpointDir(nil, dir); got != dir {
		t.Errorf("explicit dir = %q, want %q", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("explicit dir not created: %v", err)
	}
}

func TestBuildPredicate(t *testing.T) {
	p, err := buildPredicate("query", `json | level == "error"`, false)
	if err != nil || p.Kind() != filter.KindQuery {
		t.Errorf("query mode = %v, %v", p.Kind(), err)
	}

	p, err = buildPredicate("plain", "ERROR", true)
	if err != nil || p.Kind() != filter.KindPlain {
		t.Errorf("plain mode = %v, %v", p.Kind(), err)
	}

	p, err = buildPredicate("regex", "err(or)?", false)
	if err != nil || p.Kind() != filter.KindRegex {
		t.Errorf("regex mode = %v, %v", p.Kind(), err)
	}

	if _, err := buildPredicate("regex", "err(", false); err == nil {
		t.Error("bad regex should fail")
	}
	if _, err := buildPredicate("nope", "x", false); err == nil {
		t.Error("unknown mode should fail")
	}
}
