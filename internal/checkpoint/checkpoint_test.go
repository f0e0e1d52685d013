package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"lazytail/internal/lineindex"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func checkpointFor(t *testing.T, logPath string) *Checkpoint {
	t.Helper()
	ix, err := lineindex.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ix.Close() }()

	hash, n := ix.HeadHash()
	return &Checkpoint{
		HeadHash:   hash,
		HeadLen:    n,
		Scanned:    ix.Scanned(),
		Offsets:    ix.Offsets(),
		Severities: make([]uint8, ix.Len()),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	logPath := writeLog(t, "INFO one\nERROR two\n")
	cp := checkpointFor(t, logPath)
	cp.Severities = []uint8{2, 4}

	path := filepath.Join(t.TempDir(), "state", "app.cp")
	if err := Save(path, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, cp) {
		t.Errorf("Load = %+v, want %+v", got, cp)
	}
}

func TestLoadMissing(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.cp"))
	if err != nil || got != nil {
		t.Errorf("Load missing = %+v, %v; want nil, nil", got, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cp")
	if err := os.WriteFile(path, []byte("not msgpack"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil || got != nil {
		t.Errorf("Load corrupt = %+v, %v; want nil, nil", got, err)
	}
}

func TestLoadVersionMismatch(t *testing.T) {
	logPath := writeLog(t, "a\n")
	cp := checkpointFor(t, logPath)

	path := filepath.Join(t.TempDir(), "old.cp")
	if err := Save(path, cp); err != nil {
		t.Fatal(err)
	}

	// Bump the header version byte in place.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[2] = Version + 1
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil || got != nil {
		t.Errorf("Load old version = %+v, %v; want nil, nil", got, err)
	}
}

func TestLoadSeverityLengthMismatch(t *testing.T) {
	logPath := writeLog(t, "a\nb\n")
	cp := checkpointFor(t, logPath)
	cp.Severities = cp.Severities[:1]

	path := filepath.Join(t.TempDir(), "short.cp")
	if err := Save(path, cp); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil || got != nil {
		t.Errorf("Load mismatched = %+v, %v; want nil, nil", got, err)
	}
}

func TestValidate(t *testing.T) {
	logPath := writeLog(t, "INFO one\nERROR two\n")
	cp := checkpointFor(t, logPath)

	if err := cp.Validate(logPath); err != nil {
		t.Errorf("Validate unchanged file: %v", err)
	}

	// Appended content is still valid; the checkpoint covers a prefix.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("WARN three\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := cp.Validate(logPath); err != nil {
		t.Errorf("Validate after append: %v", err)
	}
}

func TestValidateShrunkFile(t *testing.T) {
	logPath := writeLog(t, "INFO one\nERROR two\n")
	cp := checkpointFor(t, logPath)

	if err := os.WriteFile(logPath, []byte("INFO one\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cp.Validate(logPath); !errors.Is(err, ErrStale) {
		t.Errorf("Validate shrunk = %v, want ErrStale", err)
	}
}

func TestValidateRewrittenFile(t *testing.T) {
	logPath := writeLog(t, "INFO one\nERROR two\n")
	cp := checkpointFor(t, logPath)

	// Same length, different leading bytes.
	if err := os.WriteFile(logPath, []byte("WARN one\nERROR two\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cp.Validate(logPath); !errors.Is(err, ErrStale) {
		t.Errorf("Validate rewritten = %v, want ErrStale", err)
	}
}
