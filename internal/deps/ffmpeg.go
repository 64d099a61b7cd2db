package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpegForExtractor reports the FFmpeg binary the extractor will use
// for audio conversion.
//
// The extractor prefers an ffmpeg binary that sits next to its own executable
// and falls back to resolving "ffmpeg" from PATH. This helper mirrors that
// lookup so ripcast status output matches what the extractor actually runs.
func CheckFFmpegForExtractor(extractorCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Used by the extractor for audio conversion",
	}

	extractorBinary := strings.TrimSpace(extractorCommand)
	if extractorBinary != "" {
		if resolved, err := exec.LookPath(extractorBinary); err == nil {
			if candidate, ok := sidecarCandidate(resolved); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	ffmpegName := "ffmpeg"
	if ffmpegPath, err := exec.LookPath(ffmpegName); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		return result
	}

	result.Command = ffmpegName
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", ffmpegName)
	return result
}

func sidecarCandidate(extractorPath string) (string, bool) {
	if extractorPath == "" {
		return "", false
	}
	dir := filepath.Dir(extractorPath)
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dir, name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
