package views

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viewdeal/viewdeal/internal/config"
)

// HTTPSource fetches view counts from the stats API over HTTP.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSource(cfg config.ViewsConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type statsResponse struct {
	VideoID   string `json:"video_id"`
	ViewCount int64  `json:"view_count"`
}

func (s *HTTPSource) FetchViewCount(ctx context.Context, videoID string) (int64, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return 0, ErrInvalidVideoID
	}

	endpoint := fmt.Sprintf("%s/v1/videos/%s/stats", s.baseURL, url.PathEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: stats api returned %d for video %s", ErrFetchFailed, resp.StatusCode, videoID)
	}

	var payload statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: decode stats: %v", ErrFetchFailed, err)
	}
	if payload.ViewCount < 0 {
		return 0, fmt.Errorf("%w: stats api returned negative count %d", ErrFetchFailed, payload.ViewCount)
	}
	return payload.ViewCount, nil
}
