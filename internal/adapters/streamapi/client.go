// Package streamapi is the HTTP client of the external stream-resolution
// service: it lists candidate sources per quality tier and exchanges a
// chosen candidate for a playable manifest template.
package streamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tokonoko12/playdeck/internal/domain"
	"github.com/tokonoko12/playdeck/internal/ports"
)

// primaryStreamKey is the one response entry guaranteed to reference the
// adaptive manifest the player understands. Every other entry in the same
// response points at source files and is ignored for playback.
const primaryStreamKey = "Original"

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ ports.StreamResolver = (*Client)(nil)

func (c *Client) ListCandidates(ctx context.Context, target domain.PlaybackTarget) (domain.SourceCollection, error) {
	var endpoint string
	switch target.MediaKind {
	case domain.MediaMovie:
		endpoint = fmt.Sprintf("%s/movies/%s", c.baseURL, url.PathEscape(target.ExternalID))
	case domain.MediaSeries:
		endpoint = fmt.Sprintf("%s/series/%s/%d/%d", c.baseURL, url.PathEscape(target.ExternalID), target.Season, target.Episode)
	default:
		return nil, &ports.ResolutionError{Reason: "unsupported media kind " + string(target.MediaKind)}
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	col, err := decodeStreamCollection(body)
	if err != nil {
		return nil, &ports.ResolutionError{Reason: "malformed streams response", Err: err}
	}
	if len(col) == 0 {
		return nil, &ports.ResolutionError{Reason: "no streams found for this content"}
	}
	return col, nil
}

func (c *Client) ResolvePlayable(ctx context.Context, src domain.SourceRef) (domain.ResolvedStream, error) {
	endpoint := fmt.Sprintf("%s/stream?url=%s", c.baseURL, url.QueryEscape(src.LocatorURL))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return domain.ResolvedStream{}, err
	}

	var resp struct {
		AudioLang map[string]string `json:"audio_lang"`
		Duration  float64           `json:"duration"`
		Size      int64             `json:"size"`
		Streams   map[string]string `json:"streams"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ResolvedStream{}, &ports.ResolutionError{Reason: "malformed stream response", Err: err}
	}

	manifest, ok := resp.Streams[primaryStreamKey]
	if !ok || strings.TrimSpace(manifest) == "" {
		// A response without the primary entry is unresolvable, not an
		// empty-but-valid stream.
		return domain.ResolvedStream{}, &ports.ResolutionError{Reason: "failed to resolve a playable stream URL"}
	}

	return domain.ResolvedStream{
		ManifestURLTemplate: manifest,
		AudioLanguages:      resp.AudioLang,
		DurationSeconds:     resp.Duration,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ports.ResolutionError{Reason: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ports.ResolutionError{Reason: "could not reach stream resolution service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ports.ResolutionError{Reason: fmt.Sprintf("stream resolution service returned %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, &ports.ResolutionError{Reason: "read response", Err: err}
	}
	return b, nil
}
