package app

import (
	"errors"
	"testing"
)

func TestBuildManifestURL(t *testing.T) {
	const tmpl = "https://cdn.example.com/{audio}/manifest.mpd"

	cases := []struct {
		name   string
		tmpl   string
		lang   string
		offset float64
		want   string
	}{
		{"no offset", tmpl, "en", 0, "https://cdn.example.com/en/manifest.mpd"},
		{"offset below threshold", tmpl, "en", 0.9, "https://cdn.example.com/en/manifest.mpd"},
		{"offset exactly one second", tmpl, "en", 1, "https://cdn.example.com/en/manifest.mpd"},
		{"offset rounded", tmpl, "en", 95.6, "https://cdn.example.com/en/manifest.mpd?t=96"},
		{"other language", tmpl, "fr", 30, "https://cdn.example.com/fr/manifest.mpd?t=30"},
		{"existing query dropped", "https://cdn.example.com/manifest.mpd?sig=abc", "en", 30, "https://cdn.example.com/manifest.mpd?t=30"},
		{"existing query kept when no offset", "https://cdn.example.com/manifest.mpd?sig=abc", "en", 0, "https://cdn.example.com/manifest.mpd?sig=abc"},
	}
	for _, tc := range cases {
		if got := buildManifestURL(tc.tmpl, tc.lang, tc.offset); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestValidateManifestURL(t *testing.T) {
	if err := validateManifestURL("https://cdn.example.com/manifest.mpd"); err != nil {
		t.Fatalf("valid url rejected: %v", err)
	}
	if err := validateManifestURL("http://cdn.example.com/manifest.mpd?t=30"); err != nil {
		t.Fatalf("valid url rejected: %v", err)
	}

	for _, raw := range []string{"", "/relative/manifest.mpd", "ftp://host/manifest.mpd", "not a url at all"} {
		err := validateManifestURL(raw)
		if err == nil {
			t.Fatalf("expected rejection for %q", raw)
		}
		var ime *InvalidManifestError
		if !errors.As(err, &ime) {
			t.Fatalf("expected InvalidManifestError for %q, got %T", raw, err)
		}
		if ime.Value != raw {
			t.Fatalf("offending value not preserved: got %q, want %q", ime.Value, raw)
		}
	}
}
