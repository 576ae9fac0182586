package main

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Faultbox/avatar-studio/internal/recording/library"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// seedRecording writes one finished recording with n frames into dir.
func seedRecording(t *testing.T, dir string, n int) string {
	t.Helper()
	lib, err := library.Open(dir, library.Options{})
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	defer lib.Close()

	sess, err := lib.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := sess.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 6)), 0); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if _, err := sess.Finish(time.Second); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return sess.ID()
}

func TestRecordingsListEmpty(t *testing.T) {
	out, err := runCLI(t, "--recordings", t.TempDir(), "recordings", "list")
	if err != nil {
		t.Fatalf("recordings list: %v", err)
	}
	requireContains(t, out, "No recordings")
}

func TestRecordingsLifecycle(t *testing.T) {
	dir := t.TempDir()
	id := seedRecording(t, dir, 3)

	out, err := runCLI(t, "--recordings", dir, "recordings", "list")
	if err != nil {
		t.Fatalf("recordings list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "8x6")
	requireContains(t, out, "done")

	dest := filepath.Join(t.TempDir(), "take.zip")
	out, err = runCLI(t, "--recordings", dir, "recordings", "export", id, dest)
	if err != nil {
		t.Fatalf("recordings export: %v", err)
	}
	requireContains(t, out, "Exported")

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 3 {
		t.Errorf("archive has %d files, want 3", len(zr.File))
	}
	zr.Close()

	if _, err := runCLI(t, "--recordings", dir, "rec", "rm", id); err != nil {
		t.Fatalf("recordings rm: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, id)); !os.IsNotExist(err) {
		t.Errorf("recording dir still present after rm: %v", err)
	}

	if _, err := runCLI(t, "--recordings", dir, "recordings", "export", id, dest); err == nil {
		t.Error("export of a removed recording should fail")
	}
}

const vrm1Document = `{
  "asset": {"version": "2.0"},
  "extensionsUsed": ["VRMC_vrm"],
  "scenes": [{"nodes": [0]}],
  "nodes": [{"name": "Hips", "children": [1]}, {"name": "Head"}],
  "extensions": {
    "VRMC_vrm": {
      "specVersion": "1.0",
      "meta": {"name": "Test Avatar", "authors": ["alice", "bob"], "licenseUrl": "https://example.com/license"},
      "humanoid": {"humanBones": {"hips": {"node": 0}, "head": {"node": 1}}}
    }
  }
}`

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tester.vrm")
	if err := os.WriteFile(path, []byte(vrm1Document), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "tester")
	requireContains(t, out, "Test Avatar")
	requireContains(t, out, "alice, bob")
	requireContains(t, out, "Humanoid bones (2)")
	requireContains(t, out, "Hips")
}

func TestInspectRejectsNonModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "inspect", path); err == nil {
		t.Fatal("inspect of a text file should fail")
	}
}

func TestRenderTablePlainWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	got := renderTable(&buf, []string{"A", "B"}, [][]string{{"1", "2"}}, nil)
	if strings.ContainsAny(got, "╭│") {
		t.Errorf("piped table has borders:\n%s", got)
	}
	requireContains(t, got, "1")
}
