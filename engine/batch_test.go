package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hollowaylabs/dcp/journal"
	"github.com/hollowaylabs/dcp/provider"
)

func writeLocalFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_UploadToRemoteDir(t *testing.T) {
	tmp := t.TempDir()
	srcA := writeLocalFile(t, tmp, "a.txt", "alpha")
	srcB := writeLocalFile(t, tmp, "b.txt", "bravo")

	remote := newFakeRemote()
	remote.dirs["x"] = true

	var out bytes.Buffer
	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 4,
		Out:         &out,
	}

	report, err := runner.Run(context.Background(), []string{srcA, srcB}, "data://x")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Direction != Upload {
		t.Errorf("Expected upload direction, got %v", report.Direction)
	}
	if report.Succeeded != 2 {
		t.Errorf("Expected 2 successes, got %d", report.Succeeded)
	}
	if report.Bytes != int64(len("alpha")+len("bravo")) {
		t.Errorf("Expected %d bytes, got %d", len("alpha")+len("bravo"), report.Bytes)
	}

	if data, ok := remote.object("x/a.txt"); !ok || string(data) != "alpha" {
		t.Errorf("Expected x/a.txt to hold %q, got %q (ok=%v)", "alpha", data, ok)
	}
	if data, ok := remote.object("x/b.txt"); !ok || string(data) != "bravo" {
		t.Errorf("Expected x/b.txt to hold %q, got %q (ok=%v)", "bravo", data, ok)
	}

	output := out.String()
	if !strings.Contains(output, "Uploaded data://x/a.txt") {
		t.Errorf("Missing progress line for a.txt in output:\n%s", output)
	}
	if !strings.Contains(output, "Uploaded data://x/b.txt") {
		t.Errorf("Missing progress line for b.txt in output:\n%s", output)
	}
	if !strings.Contains(output, "Finished uploading 2 file(s)") {
		t.Errorf("Missing summary line in output:\n%s", output)
	}
	if strings.Count(output, "\n") != 3 {
		t.Errorf("Expected exactly 3 output lines, got:\n%s", output)
	}
}

func TestRun_DownloadToLocalDir(t *testing.T) {
	remote := newFakeRemote()
	remote.objects["x/a.txt"] = []byte("hello")

	outDir := t.TempDir()

	var out bytes.Buffer
	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 4,
		Out:         &out,
	}

	report, err := runner.Run(context.Background(), []string{"data://x/a.txt"}, outDir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Direction != Download {
		t.Errorf("Expected download direction, got %v", report.Direction)
	}
	if report.Succeeded != 1 {
		t.Errorf("Expected 1 success, got %d", report.Succeeded)
	}

	content, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	if err != nil {
		t.Fatalf("Expected downloaded file: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", content)
	}

	output := out.String()
	if !strings.Contains(output, "Downloaded data://x/a.txt (5B)") {
		t.Errorf("Missing download progress line with byte count in output:\n%s", output)
	}
	if !strings.Contains(output, "Finished downloading 1 file(s)") {
		t.Errorf("Missing summary line in output:\n%s", output)
	}
}

func TestRun_UploadCreateNew(t *testing.T) {
	tmp := t.TempDir()
	src := writeLocalFile(t, tmp, "a.txt", "payload")

	remote := newFakeRemote()

	var out bytes.Buffer
	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 2,
		Out:         &out,
	}

	if _, err := runner.Run(context.Background(), []string{src}, "data://x/new.bin"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The object's address is exactly the literal destination.
	if data, ok := remote.object("x/new.bin"); !ok || string(data) != "payload" {
		t.Errorf("Expected x/new.bin to hold %q, got %q (ok=%v)", "payload", data, ok)
	}
	if _, ok := remote.object("x/new.bin/a.txt"); ok {
		t.Errorf("Destination must not be combined with the source filename")
	}
}

func TestRun_UploadOverwritesExistingFile(t *testing.T) {
	tmp := t.TempDir()
	src := writeLocalFile(t, tmp, "b.txt", "new content")

	remote := newFakeRemote()
	remote.objects["x/existing.txt"] = []byte("old content")

	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 1,
		Out:         &bytes.Buffer{},
	}

	if _, err := runner.Run(context.Background(), []string{src}, "data://x/existing.txt"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if data, _ := remote.object("x/existing.txt"); string(data) != "new content" {
		t.Errorf("Expected overwrite with %q, got %q", "new content", data)
	}
}

func TestRun_EmptySources(t *testing.T) {
	var out bytes.Buffer
	// Providers stay nil: an empty batch must touch neither backend.
	runner := &Runner{Concurrency: 8, Out: &out}

	report, err := runner.Run(context.Background(), nil, "data://x")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Succeeded != 0 {
		t.Errorf("Expected 0 successes, got %d", report.Succeeded)
	}
	if out.String() != "Finished uploading 0 file(s)\n" {
		t.Errorf("Expected bare summary line, got %q", out.String())
	}
}

func TestRun_ConcurrencyClamped(t *testing.T) {
	tmp := t.TempDir()
	var sources []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		sources = append(sources, writeLocalFile(t, tmp, name+".txt", "data-"+name))
	}

	remote := newFakeRemote()
	remote.dirs["x"] = true
	remote.writeDelay = 5 * time.Millisecond // keeps transfers overlapping

	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 3,
		Out:         &bytes.Buffer{},
	}

	report, err := runner.Run(context.Background(), sources, "data://x")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Succeeded != int64(len(sources)) {
		t.Errorf("Expected %d successes, got %d", len(sources), report.Succeeded)
	}

	if peak := remote.peakWriters.Load(); peak > 3 {
		t.Errorf("Expected at most 3 concurrent transfers, observed %d", peak)
	}
}

func TestRun_FirstFailureAbortsBatch(t *testing.T) {
	tmp := t.TempDir()
	good := writeLocalFile(t, tmp, "good.txt", "fine")
	missing := filepath.Join(tmp, "missing.txt")

	remote := newFakeRemote()
	remote.dirs["x"] = true

	var out bytes.Buffer
	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 1,
		Out:         &out,
	}

	report, err := runner.Run(context.Background(), []string{good, missing, good}, "data://x")
	if err == nil {
		t.Fatal("Expected a batch failure")
	}

	if report.Failed == nil {
		t.Fatal("Expected a failed item in the report")
	}
	if report.Failed.Item != missing {
		t.Errorf("Expected failed item %q, got %q", missing, report.Failed.Item)
	}
	if !errors.Is(report.Failed, provider.ErrNotFound) {
		t.Errorf("Expected a not-found cause, got %v", report.Failed.Err)
	}

	// The success before the failure stands; with one worker nothing after
	// the failing item is attempted.
	if report.Succeeded != 1 {
		t.Errorf("Expected 1 success before the failure, got %d", report.Succeeded)
	}
	if strings.Contains(out.String(), "Finished") {
		t.Errorf("Summary line must not print for a failed batch:\n%s", out.String())
	}
}

func TestRun_SharedLiteralTargetLastWriterWins(t *testing.T) {
	tmp := t.TempDir()
	srcA := writeLocalFile(t, tmp, "a.txt", "from-a")
	srcB := writeLocalFile(t, tmp, "b.txt", "from-b")

	remote := newFakeRemote()

	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 2,
		Out:         &bytes.Buffer{},
	}

	if _, err := runner.Run(context.Background(), []string{srcA, srcB}, "data://x/shared.bin"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Both items resolve create-new against the same literal path; one of
	// the two bodies survives.
	data, ok := remote.object("x/shared.bin")
	if !ok {
		t.Fatal("Expected the shared object to exist")
	}
	if got := string(data); got != "from-a" && got != "from-b" {
		t.Errorf("Expected one of the two uploads, got %q", got)
	}
}

func TestRun_JournalRecordsOutcomes(t *testing.T) {
	tmp := t.TempDir()
	good := writeLocalFile(t, tmp, "good.txt", "fine")
	bad := writeLocalFile(t, tmp, "bad.txt", "doomed")

	remote := newFakeRemote()
	remote.dirs["x"] = true
	remote.failPut = "x/bad.txt"

	j, err := journal.NewBoltJournal(filepath.Join(tmp, "journal.db"))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 1,
		Journal:     j,
		Out:         &bytes.Buffer{},
	}

	if _, err := runner.Run(context.Background(), []string{good, bad}, "data://x"); err == nil {
		t.Fatal("Expected the batch to fail")
	}

	entry, err := j.Get(good)
	if err != nil {
		t.Fatalf("Expected a journal entry for the success: %v", err)
	}
	if entry.State != journal.StateCompleted {
		t.Errorf("Expected completed state, got %s", entry.State)
	}
	if entry.Target != "data://x/good.txt" {
		t.Errorf("Expected resolved target, got %q", entry.Target)
	}
	if entry.Mode != "insert-child" {
		t.Errorf("Expected insert-child write mode, got %q", entry.Mode)
	}
	if entry.Bytes != int64(len("fine")) {
		t.Errorf("Expected %d bytes, got %d", len("fine"), entry.Bytes)
	}

	entry, err = j.Get(bad)
	if err != nil {
		t.Fatalf("Expected a journal entry for the failure: %v", err)
	}
	if entry.State != journal.StateFailed {
		t.Errorf("Expected failed state, got %s", entry.State)
	}
	if entry.Error == "" {
		t.Errorf("Expected the failure message to be recorded")
	}
}

func TestSizeWithSuffix(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0"},
		{5, "5"},
		{1023, "1023"},
		{1024, "1.0K"},
		{1536, "1.5K"},
		{5 * 1024 * 1024, "5.0M"},
		{3 * 1024 * 1024 * 1024, "3.0G"},
	}

	for _, tt := range tests {
		if got := sizeWithSuffix(tt.n); got != tt.expected {
			t.Errorf("sizeWithSuffix(%d) = %q; want %q", tt.n, got, tt.expected)
		}
	}
}

func TestRun_FileSchemeDestination(t *testing.T) {
	remote := newFakeRemote()
	remote.objects["x/a.txt"] = []byte("via-file-scheme")

	outDir := t.TempDir()

	runner := &Runner{
		Local:       provider.NewLocalProvider(""),
		Remote:      remote,
		Concurrency: 1,
		Out:         &bytes.Buffer{},
	}

	report, err := runner.Run(context.Background(), []string{"data://x/a.txt"}, "file://"+outDir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Direction != Download {
		t.Errorf("Expected download direction for file:// destination")
	}

	content, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	if err != nil {
		t.Fatalf("Expected downloaded file: %v", err)
	}
	if string(content) != "via-file-scheme" {
		t.Errorf("Expected %q, got %q", "via-file-scheme", content)
	}
}
