package services

import (
	"context"
	"math"

	"github.com/TokDenis/awblog/types"
)

func (p *Posts) Stats(ctx context.Context) (*types.BlogStats, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// computeStats expects posts newest first; the earliest listed post wins a
// tie for most viewed.
func computeStats(posts []*types.Post) *types.BlogStats {
	stats := &types.BlogStats{
		Total:     len(posts),
		TotalTags: len(uniqueTags(posts)),
	}
	if len(posts) == 0 {
		return stats
	}

	stats.NewestPost = posts[0]
	for _, post := range posts {
		stats.TotalViews += post.Views
		if stats.MostViewedPost == nil || post.Views > stats.MostViewedPost.Views {
			stats.MostViewedPost = post
		}
	}
	stats.AverageViews = int64(math.Round(float64(stats.TotalViews) / float64(len(posts))))

	return stats
}
