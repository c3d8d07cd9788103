package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriter_Write(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	writer, err := NewRotatingFileWriter(logFile, 100, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	data := []byte("This is a test log message\n")
	n, err := writer.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("File content = %q, want %q", content, data)
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 50, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	first := strings.Repeat("A", 30) + "\n"
	second := strings.Repeat("B", 30) + "\n"

	if _, err := writer.Write([]byte(first)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if _, err := writer.Write([]byte(second)); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	current, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(current) != second {
		t.Errorf("Current log content = %q, want %q", current, second)
	}

	backup, err := os.ReadFile(filepath.Join(dir, "test.1.log"))
	if err != nil {
		t.Fatalf("Backup file was not created: %v", err)
	}
	if string(backup) != first {
		t.Errorf("Backup content = %q, want %q", backup, first)
	}
}

func TestRotatingFileWriter_MaxBackups(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 20, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	for i := 0; i < 6; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("X", 15) + "\n")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	if len(files) != 3 {
		var names []string
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("Expected current file plus 2 backups, got %v", names)
	}
}

func TestNewRotatingFileWriter_InvalidSize(t *testing.T) {
	if _, err := NewRotatingFileWriter(filepath.Join(t.TempDir(), "x.log"), 0, 1); err == nil {
		t.Error("Expected error for zero max size")
	}
}
