package validate_test

import (
	"errors"
	"testing"

	"ripcast/internal/validate"
)

func newValidator() *validate.Validator {
	return validate.New(
		[]string{"youtube.com", "www.youtube.com", "youtu.be", "soundcloud.com"},
		[]string{"mp3", "m4a", "opus"},
		"mp3",
		100,
		20,
	)
}

func TestSourceURL(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name   string
		input  string
		reason validate.Reason
	}{
		{"allowed host", "https://youtube.com/watch?v=abc123", ""},
		{"allowed short host", "https://youtu.be/abc123", ""},
		{"host case folded", "https://YouTube.com/watch?v=abc123", ""},
		{"empty", "", validate.ReasonMalformed},
		{"no scheme", "youtube.com/watch?v=abc", validate.ReasonMalformed},
		{"ftp scheme", "ftp://youtube.com/file", validate.ReasonScheme},
		{"unlisted domain", "https://example.com/video", validate.ReasonDomain},
		{"subdomain not whitelisted", "https://evil.youtube.com.attacker.net/x", validate.ReasonDomain},
		{"loopback literal", "http://127.0.0.1/admin", validate.ReasonPrivateHost},
		{"private literal", "http://192.168.1.10/x", validate.ReasonPrivateHost},
		{"link local metadata", "http://169.254.169.254/latest/meta-data", validate.ReasonPrivateHost},
		{"public literal bypasses whitelist", "http://8.8.8.8/x", validate.ReasonDomain},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.SourceURL(tc.input)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected %q to pass, got %v", tc.input, err)
				}
				return
			}
			var fieldErr *validate.FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError for %q, got %v", tc.input, err)
			}
			if fieldErr.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, fieldErr.Reason)
			}
		})
	}
}

func TestSourceURLCanonicalizes(t *testing.T) {
	v := newValidator()

	canonical, err := v.SourceURL("https://WWW.YouTube.com/watch?v=abc#t=30")
	if err != nil {
		t.Fatalf("SourceURL: %v", err)
	}
	if canonical != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("unexpected canonical URL: %s", canonical)
	}
}

func TestFormat(t *testing.T) {
	v := newValidator()

	if format, err := v.Format(""); err != nil || format != "mp3" {
		t.Fatalf("expected default mp3, got %q, %v", format, err)
	}
	if format, err := v.Format("MP3"); err != nil || format != "mp3" {
		t.Fatalf("expected case-folded mp3, got %q, %v", format, err)
	}
	if _, err := v.Format("exe"); err == nil {
		t.Fatal("expected rejection of unlisted format")
	}
	if _, err := v.Format("mp3; rm -rf /"); err == nil {
		t.Fatal("expected rejection of injected format")
	}
}

func TestOptionalName(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"empty allowed", "", true},
		{"plain name", "My Song", true},
		{"unicode name", "Chanson d'été", true},
		{"traversal", "../../etc/passwd", false},
		{"forward slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"leading dot", ".hidden", false},
		{"semicolon", "song; rm -rf /", false},
		{"backtick", "song`id`", false},
		{"dollar", "song$(reboot)", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.OptionalName(tc.input)
			if tc.ok && err != nil {
				t.Fatalf("expected %q to pass, got %v", tc.input, err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected %q to be rejected", tc.input)
			}
		})
	}
}

func TestOptionalNameLength(t *testing.T) {
	v := newValidator()

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err := v.OptionalName(string(long))
	var fieldErr *validate.FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Reason != validate.ReasonTooLong {
		t.Fatalf("expected too_long, got %v", err)
	}
}

func TestURLBatch(t *testing.T) {
	v := newValidator()

	if _, err := v.URLBatch(nil); err == nil {
		t.Fatal("expected empty batch rejection")
	}

	urls := make([]string, 21)
	for i := range urls {
		urls[i] = "https://youtube.com/watch?v=x"
	}
	var fieldErr *validate.FieldError
	if _, err := v.URLBatch(urls); !errors.As(err, &fieldErr) || fieldErr.Reason != validate.ReasonBatchTooLarge {
		t.Fatalf("expected batch_too_large, got %v", err)
	}

	batch := []string{
		"https://youtube.com/watch?v=a",
		"https://example.com/video",
		"https://youtu.be/c",
	}
	_, err := v.URLBatch(batch)
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fieldErr.Index != 1 {
		t.Fatalf("expected failing index 1, got %d", fieldErr.Index)
	}

	good := []string{"https://youtube.com/watch?v=a", "https://youtu.be/b"}
	canonical, err := v.URLBatch(good)
	if err != nil {
		t.Fatalf("URLBatch: %v", err)
	}
	if len(canonical) != 2 {
		t.Fatalf("expected 2 canonical urls, got %d", len(canonical))
	}
}
