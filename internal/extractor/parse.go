package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

// Update carries the fields recovered from one progress line. Any subset may
// be absent; Percent is -1 when the line carried no percentage.
type Update struct {
	Percent float64
	Speed   string
	ETA     string
}

var (
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)
	speedPattern   = regexp.MustCompile(`at\s+(~?[\d.]+\s?[KMGT]?i?B/s)`)
	etaPattern     = regexp.MustCompile(`ETA\s+([\d:]+)`)
)

// parseProgressLine extracts percentage, speed, and ETA tokens from one line
// of extractor output. The pattern is deliberately tolerant: lines without any
// recognizable token report ok=false and are skipped.
func parseProgressLine(line string) (Update, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return Update{}, false
	}

	update := Update{Percent: -1}
	found := false
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if percent, err := strconv.ParseFloat(m[1], 64); err == nil {
			update.Percent = percent
			found = true
		}
	}
	if m := speedPattern.FindStringSubmatch(line); m != nil {
		update.Speed = m[1]
		found = true
	}
	if m := etaPattern.FindStringSubmatch(line); m != nil {
		update.ETA = m[1]
		found = true
	}
	return update, found
}

// extractDestinationPrefix announces the final audio path once transcoding
// begins. The raw "[download] Destination:" line is ignored; only the
// post-extraction path names the artifact.
const extractDestinationPrefix = "[ExtractAudio] Destination:"

func parseDestination(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, extractDestinationPrefix) {
		return "", false
	}
	dest := strings.TrimSpace(strings.TrimPrefix(line, extractDestinationPrefix))
	if dest == "" {
		return "", false
	}
	return dest, true
}
