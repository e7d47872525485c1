// Package views adapts the platform's video statistics endpoint into the
// view-count source consumed by the reconciliation engine.
package views

import (
	"context"
	"errors"
)

// Source returns the current total view count for a video. Counts are
// eventually consistent and non-decreasing in practice; callers must tolerate
// regressions.
type Source interface {
	FetchViewCount(ctx context.Context, videoID string) (int64, error)
}

var (
	ErrFetchFailed    = errors.New("view_count_fetch_failed")
	ErrInvalidVideoID = errors.New("invalid_video_id")
)
