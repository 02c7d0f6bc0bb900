package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	// Test non-existent file
	if Exists(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("Exists returned true for non-existent file")
	}

	// Test existing file
	path := filepath.Join(tmpDir, "exists.txt")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Error("Exists returned false for existing file")
	}
}

func TestIsNonEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	// Test non-existent file
	if IsNonEmpty(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("IsNonEmpty returned true for non-existent file")
	}

	// Test empty file
	emptyPath := filepath.Join(tmpDir, "empty.txt")
	if err := os.WriteFile(emptyPath, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}
	if IsNonEmpty(emptyPath) {
		t.Error("IsNonEmpty returned true for empty file")
	}

	// Test non-empty file
	nonEmptyPath := filepath.Join(tmpDir, "nonempty.txt")
	if err := os.WriteFile(nonEmptyPath, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if !IsNonEmpty(nonEmptyPath) {
		t.Error("IsNonEmpty returned false for non-empty file")
	}
}

func TestWriteTmpThenMove(t *testing.T) {
	tmpDir := t.TempDir()
	outPath := filepath.Join(tmpDir, "sub", "out.tiff")

	err := WriteTmpThenMove(outPath, func(tmpPath string) error {
		return os.WriteFile(tmpPath, []byte("tile bytes"), 0644)
	})
	if err != nil {
		t.Fatalf("WriteTmpThenMove error: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "tile bytes" {
		t.Errorf("output content = %q, want %q", data, "tile bytes")
	}

	// No tmp file left behind
	if Exists(outPath + ".tmp") {
		t.Error("tmp file left behind after successful move")
	}
}

func TestWriteTmpThenMove_WriteFuncError(t *testing.T) {
	tmpDir := t.TempDir()
	outPath := filepath.Join(tmpDir, "out.tiff")
	wantErr := errors.New("transfer aborted")

	err := WriteTmpThenMove(outPath, func(tmpPath string) error {
		// Simulate a partial write before failing
		if werr := os.WriteFile(tmpPath, []byte("partial"), 0644); werr != nil {
			t.Fatal(werr)
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped write error, got: %v", err)
	}

	// Neither final nor tmp file should exist
	if Exists(outPath) {
		t.Error("final path exists after failed write")
	}
	if Exists(outPath + ".tmp") {
		t.Error("tmp file left behind after failed write")
	}
}

func TestCleanupTmpFiles(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "Lombok2018", "pre_quads")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tmpFile := filepath.Join(subDir, "quad1_pre.tiff.tmp")
	keepFile := filepath.Join(subDir, "quad2_pre.tiff")
	if err := os.WriteFile(tmpFile, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keepFile, []byte("complete"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CleanupTmpFiles(tmpDir); err != nil {
		t.Fatalf("CleanupTmpFiles error: %v", err)
	}

	if Exists(tmpFile) {
		t.Error("expected tmp file to be removed")
	}
	if !Exists(keepFile) {
		t.Error("expected completed file to survive cleanup")
	}
}
