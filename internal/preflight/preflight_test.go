package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"treadmark/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ChecksDirectoriesAndWorkers(t *testing.T) {
	cfg := workingConfig(t)

	results := RunAll(context.Background(), &cfg)
	// staging + log + scratch + dataset directories, then python + two workers
	if len(results) != 7 {
		t.Fatalf("expected 7 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_ReportsMissingWorkerScript(t *testing.T) {
	cfg := workingConfig(t)
	cfg.Workers.SegmentationScript = filepath.Join(t.TempDir(), "absent.py")

	results := RunAll(context.Background(), &cfg)
	found := false
	for _, r := range results {
		if r.Name == "Segmentation worker" {
			found = true
			if r.Passed {
				t.Errorf("expected missing segmentation script to fail, got: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected segmentation worker check in results")
	}
}

func TestCheckNotificationsFromConfig(t *testing.T) {
	if result := CheckNotificationsFromConfig(nil); result.Passed || result.Detail != "Unknown" {
		t.Fatalf("unexpected nil-config result: %#v", result)
	}

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	if result := CheckNotificationsFromConfig(&cfg); result.Passed || result.Detail != "Disabled" {
		t.Fatalf("unexpected disabled result: %#v", result)
	}

	cfg.Notifications.NtfyTopic = "tread-ops"
	result := CheckNotificationsFromConfig(&cfg)
	if !result.Passed {
		t.Fatalf("expected configured topic to pass, got: %s", result.Detail)
	}
	if result.Detail != "ntfy topic tread-ops" {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

// workingConfig builds a config whose directories and worker commands all
// resolve against temp paths, so RunAll passes everywhere.
func workingConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.DatasetDir = t.TempDir()

	binDir := t.TempDir()
	python := filepath.Join(binDir, "python3")
	if err := os.WriteFile(python, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write python stub: %v", err)
	}
	segment := filepath.Join(binDir, "segment.py")
	if err := os.WriteFile(segment, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write segmentation stub: %v", err)
	}
	grayscale := filepath.Join(binDir, "preprocess.py")
	if err := os.WriteFile(grayscale, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write grayscale stub: %v", err)
	}
	cfg.Workers.PythonBinary = python
	cfg.Workers.SegmentationScript = segment
	cfg.Workers.GrayscaleScript = grayscale
	return cfg
}
