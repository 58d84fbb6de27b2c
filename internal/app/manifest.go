package app

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

const audioPlaceholder = "{audio}"

// InvalidManifestError marks a resolved manifest string that is not an
// absolute URL. Terminal for the session; the offending value is kept
// verbatim for diagnosis.
type InvalidManifestError struct {
	Value string
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("the stream URL received is invalid and cannot be played; this may happen if the content is unavailable in your region or the provider is experiencing issues (url received: %q)", e.Value)
}

// buildManifestURL substitutes the audio language into the template and,
// for offsets beyond one second, appends the start-time query parameter.
// Any pre-existing query string is dropped before appending: the offset is
// the only parameter the origin honors.
func buildManifestURL(template, audioLang string, offsetSeconds float64) string {
	u := strings.ReplaceAll(template, audioPlaceholder, audioLang)
	if offsetSeconds > 1 {
		base, _, _ := strings.Cut(u, "?")
		return fmt.Sprintf("%s?t=%d", base, int64(math.Round(offsetSeconds)))
	}
	return u
}

// validateManifestURL enforces the absolute-URL well-formedness check.
func validateManifestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &InvalidManifestError{Value: raw}
	}
	return nil
}
