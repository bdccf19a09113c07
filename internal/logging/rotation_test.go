package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter() error = %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("picks up existing size", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(logPath, []byte("existing\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter() error = %v", err)
		}
		defer func() { _ = rw.Close() }()

		if rw.Size() != int64(len("existing\n")) {
			t.Errorf("Size() = %d, want %d", rw.Size(), len("existing\n"))
		}
	})
}

func TestRotatingWriter_Rotates(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer func() { _ = rw.Close() }()

	line := []byte(strings.Repeat("x", 1023) + "\n")
	// Three megabytes of output with two backups: the oldest must be discarded.
	for i := 0; i < 3*1024+10; i++ {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	for _, p := range []string{logPath, logPath + ".1", logPath + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected %s.3 to not exist, stat err = %v", logPath, err)
	}
	if rw.Size() > 1024*1024 {
		t.Errorf("Size() = %d, exceeds limit", rw.Size())
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()

	if rw.Size() != int64(8*100*len("line\n")) {
		t.Errorf("Size() = %d, want %d", rw.Size(), 8*100*len("line\n"))
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write() after Close() expected error")
	}
}
