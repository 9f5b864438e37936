package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveAndOpen(t *testing.T) {
	s := testStore(t)
	data := []byte("png-bytes")

	path, err := s.Save("run-1", data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("artifact = %q, want %q", got, data)
	}

	f, err := s.Open("run-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()
}

func TestSaveRefusesOversized(t *testing.T) {
	s := testStore(t)

	_, err := s.Save("big", make([]byte, MaxBytes+1))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if _, statErr := os.Stat(s.Path("big")); !os.IsNotExist(statErr) {
		t.Error("oversized artifact must not be written")
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	s := testStore(t)
	if err := s.Remove("absent"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestWithTempFileCleansUp(t *testing.T) {
	var seen string
	err := WithTempFile([]byte("data"), func(path string) error {
		seen = path
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("temp artifact missing during consume: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTempFile: %v", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Error("temp artifact not removed after consume")
	}
}

func TestWithTempFileCleansUpOnConsumeError(t *testing.T) {
	var seen string
	wantErr := errors.New("midway failure")

	err := WithTempFile([]byte("data"), func(path string) error {
		seen = path
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want consume error", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Error("temp artifact not removed after failed consume")
	}
}

func TestWithTempFileRefusesOversized(t *testing.T) {
	called := false
	err := WithTempFile(make([]byte, MaxBytes+1), func(string) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if called {
		t.Error("consume must not run for oversized artifacts")
	}
}
