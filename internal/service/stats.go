package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

const ActivityWindow = 24 * time.Hour

// Stats is the dashboard summary. AdminStats is only set for admins and is
// flattened into the same JSON object.
type Stats struct {
	TotalChats     int64 `json:"totalChats"`
	TotalMessages  int64 `json:"totalMessages"`
	RecentActivity int64 `json:"recentActivity"`
	*AdminStats
}

type AdminStats struct {
	TotalUsers             int64 `json:"totalUsers"`
	TotalCommunityMessages int64 `json:"totalCommunityMessages"`
	ActiveUsers            int64 `json:"activeUsers"`
	SystemUptime           int64 `json:"systemUptime"`
}

type StatsService struct {
	store   repository.Store
	started time.Time
	now     func() time.Time
}

// NewStatsService reports uptime relative to started.
func NewStatsService(store repository.Store, started time.Time) *StatsService {
	return &StatsService{store: store, started: started, now: time.Now}
}

func (s *StatsService) Stats(ctx context.Context, user *model.User) (*Stats, error) {
	now := s.now().UTC()
	since := now.Add(-ActivityWindow)

	activity, err := s.store.Chats().Activity(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("service/stats: chat activity: %w", err)
	}
	stats := &Stats{
		TotalChats:     activity.Chats,
		TotalMessages:  activity.Messages,
		RecentActivity: activity.RecentlyActive,
	}
	if !user.IsAdmin() {
		return stats, nil
	}

	users, err := s.store.Users().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/stats: counting users: %w", err)
	}
	messages, err := s.store.Messages().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/stats: counting messages: %w", err)
	}
	active, err := s.store.Users().CountSeenSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("service/stats: counting active users: %w", err)
	}

	stats.AdminStats = &AdminStats{
		TotalUsers:             users,
		TotalCommunityMessages: messages,
		ActiveUsers:            active,
		SystemUptime:           int64(now.Sub(s.started).Seconds()),
	}
	return stats, nil
}
