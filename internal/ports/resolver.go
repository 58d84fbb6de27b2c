package ports

import (
	"context"

	"github.com/tokonoko12/playdeck/internal/domain"
)

// StreamResolver talks to the external stream-resolution service.
// Both calls are idempotent and side-effect free beyond network I/O.
type StreamResolver interface {
	// ListCandidates returns the quality-keyed candidate sources for a
	// target, preserving the response's tier order. Fails with
	// *ResolutionError when the lookup errors or yields no candidate.
	ListCandidates(ctx context.Context, target domain.PlaybackTarget) (domain.SourceCollection, error)

	// ResolvePlayable exchanges a chosen candidate for a manifest URL
	// template plus audio languages and duration. The response must carry
	// the primary stream entry; anything else in it is not playable and a
	// missing primary entry is *ResolutionError, not an empty stream.
	ResolvePlayable(ctx context.Context, src domain.SourceRef) (domain.ResolvedStream, error)
}

// ResolutionError covers resolver failures: unreachable service,
// non-success response, or no usable candidate/manifest.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }
