package extractor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ripcast/internal/extractor"
)

type scriptedExecutor struct {
	lines  []string
	err    error
	binary string
	args   []string
	dir    string
}

func (s *scriptedExecutor) Run(_ context.Context, binary string, args []string, dir string, onStdout func(string)) error {
	s.binary = binary
	s.args = args
	s.dir = dir
	for _, line := range s.lines {
		onStdout(line)
	}
	return s.err
}

func TestExtractBuildsExactArgumentVector(t *testing.T) {
	exec := &scriptedExecutor{lines: []string{
		"[download] 100% of 4.00MiB at 2.00MiB/s",
		"[ExtractAudio] Destination: /out/song.mp3",
	}}
	client, err := extractor.New("yt-dlp", time.Minute, "/work", extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := client.Extract(context.Background(), "https://youtube.com/watch?v=a", "mp3", "/out/song.%(ext)s", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if dest != "/out/song.mp3" {
		t.Fatalf("unexpected destination: %q", dest)
	}

	want := []string{
		"https://youtube.com/watch?v=a",
		"-x",
		"--audio-format", "mp3",
		"-o", "/out/song.%(ext)s",
		"--newline",
	}
	if len(exec.args) != len(want) {
		t.Fatalf("argument count %d, want %d: %v", len(exec.args), len(want), exec.args)
	}
	for i := range want {
		if exec.args[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, exec.args[i], want[i])
		}
	}
	if exec.binary != "yt-dlp" {
		t.Fatalf("unexpected binary: %q", exec.binary)
	}
	if exec.dir != "/work" {
		t.Fatalf("unexpected working directory: %q", exec.dir)
	}
}

func TestExtractSurfacesProgress(t *testing.T) {
	exec := &scriptedExecutor{lines: []string{
		"[youtube] abc: Downloading webpage",
		"[download]  25.0% of 4.00MiB at 1.00MiB/s ETA 00:03",
		"[download] 100% of 4.00MiB at 2.00MiB/s",
		"[ExtractAudio] Destination: /out/song.mp3",
	}}
	client, err := extractor.New("yt-dlp", 0, "", extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var updates []extractor.Update
	if _, err := client.Extract(context.Background(), "https://youtu.be/a", "mp3", "/out/song.%(ext)s", func(u extractor.Update) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(updates))
	}
	if updates[0].Percent != 25.0 || updates[0].ETA != "00:03" {
		t.Fatalf("unexpected first update: %#v", updates[0])
	}
	if updates[1].Percent != 100 {
		t.Fatalf("unexpected final update: %#v", updates[1])
	}
}

func TestExtractWithoutCompletionFails(t *testing.T) {
	exec := &scriptedExecutor{lines: []string{
		"[download]  25.0% of 4.00MiB at 1.00MiB/s ETA 00:03",
	}}
	client, err := extractor.New("yt-dlp", 0, "", extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.Extract(context.Background(), "https://youtu.be/a", "mp3", "/out/x.%(ext)s", nil); err == nil {
		t.Fatal("expected error when the process never confirms completion")
	}
}

func TestExtractPropagatesProcessDiagnostics(t *testing.T) {
	exec := &scriptedExecutor{err: errors.New("ERROR: unable to download video data")}
	client, err := extractor.New("yt-dlp", 0, "", extractor.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Extract(context.Background(), "https://youtu.be/a", "mp3", "/out/x.%(ext)s", nil)
	if err == nil || err.Error() != "ERROR: unable to download video data" {
		t.Fatalf("expected process diagnostic, got %v", err)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := extractor.New("   ", time.Minute, ""); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
