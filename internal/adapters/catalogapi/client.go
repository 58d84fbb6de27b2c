// Package catalogapi is a thin read-only client of the metadata catalog.
// The playback service only needs two things from it: bridging internal
// numeric ids to the resolver's external id space, and the next-episode
// metadata for the up-next prompt.
package catalogapi

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

type Client struct {
	baseURL      string
	imageBaseURL string
	apiKey       string
	http         *http.Client
}

func New(baseURL, imageBaseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

var _ ports.Catalog = (*Client)(nil)

func (c *Client) ExternalID(ctx context.Context, internalID int, kind domain.MediaKind) (string, error) {
	path := "movie"
	if kind == domain.MediaSeries {
		path = "tv"
	}
	endpoint := fmt.Sprintf("%s/%s/%d/external_ids?api_key=%s", c.baseURL, path, internalID, url.QueryEscape(c.apiKey))

	var resp struct {
		IMDBID string `json:"imdb_id"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	if resp.IMDBID == "" {
		return "", ports.ErrNotFound
	}
	return resp.IMDBID, nil
}

func (c *Client) NextEpisode(ctx context.Context, externalID string, season, episode int) (domain.EpisodeRef, domain.UpNextInfo, error) {
	internalID, posterPath, err := c.findSeries(ctx, externalID)
	if err != nil {
		return domain.EpisodeRef{}, domain.UpNextInfo{}, err
	}

	endpoint := fmt.Sprintf("%s/tv/%d/season/%d?api_key=%s&language=en-US", c.baseURL, internalID, season, url.QueryEscape(c.apiKey))
	var resp struct {
		Episodes []struct {
			SeasonNumber  int    `json:"season_number"`
			EpisodeNumber int    `json:"episode_number"`
			Name          string `json:"name"`
			Overview      string `json:"overview"`
			StillPath     string `json:"still_path"`
		} `json:"episodes"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return domain.EpisodeRef{}, domain.UpNextInfo{}, err
	}

	for _, ep := range resp.Episodes {
		if ep.EpisodeNumber != episode+1 {
			continue
		}
		image := ""
		if ep.StillPath != "" {
			image = c.imageBaseURL + ep.StillPath
		} else if posterPath != "" {
			image = c.imageBaseURL + posterPath
		}
		return domain.EpisodeRef{Season: ep.SeasonNumber, Episode: ep.EpisodeNumber},
			domain.UpNextInfo{
				Title:    fmt.Sprintf("E%d: %s", ep.EpisodeNumber, ep.Name),
				Synopsis: ep.Overview,
				ImageURL: image,
			}, nil
	}
	return domain.EpisodeRef{}, domain.UpNextInfo{}, ports.ErrNotFound
}

// findSeries maps the external id back to the catalog's internal series id.
func (c *Client) findSeries(ctx context.Context, externalID string) (int, string, error) {
	endpoint := fmt.Sprintf("%s/find/%s?api_key=%s&language=en-US&external_source=imdb_id", c.baseURL, url.PathEscape(externalID), url.QueryEscape(c.apiKey))
	var resp struct {
		TVResults []struct {
			ID         int    `json:"id"`
			PosterPath string `json:"poster_path"`
		} `json:"tv_results"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return 0, "", err
	}
	if len(resp.TVResults) == 0 {
		return 0, "", ports.ErrNotFound
	}
	return resp.TVResults[0].ID, resp.TVResults[0].PosterPath, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ports.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
