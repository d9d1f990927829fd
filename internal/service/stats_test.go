package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/model"
)

func TestStats_User(t *testing.T) {
	db := newTestStore(t)
	user := seedUser(t, db, "student", model.RoleUser)
	seedChat(t, db, user.ID, "one")
	seedChat(t, db, user.ID, "two")
	gone := seedChat(t, db, user.ID, "deleted")
	if err := db.Chats().Deactivate(context.Background(), gone.ID, user.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	svc := NewStatsService(db, time.Now())
	stats, err := svc.Stats(context.Background(), user)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.TotalChats != 2 {
		t.Errorf("TotalChats = %d, want 2", stats.TotalChats)
	}
	if stats.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", stats.TotalMessages)
	}
	if stats.RecentActivity != 2 {
		t.Errorf("RecentActivity = %d, want 2", stats.RecentActivity)
	}
	if stats.AdminStats != nil {
		t.Errorf("AdminStats = %+v, want nil for a regular user", stats.AdminStats)
	}

	raw, _ := json.Marshal(stats)
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := fields["totalUsers"]; ok {
		t.Errorf("regular user stats leak admin fields: %s", raw)
	}
}

func TestStats_Admin(t *testing.T) {
	db := newTestStore(t)
	admin := seedUser(t, db, "boss", model.RoleAdmin)
	seedUser(t, db, "member", model.RoleUser)
	msg := &model.Message{UserID: admin.ID, Username: admin.Username, Content: "welcome"}
	if err := db.Messages().Create(context.Background(), msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	svc := NewStatsService(db, time.Now().Add(-90*time.Second))
	stats, err := svc.Stats(context.Background(), admin)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.AdminStats == nil {
		t.Fatal("AdminStats = nil, want populated for an admin")
	}
	if stats.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d, want 2", stats.TotalUsers)
	}
	if stats.TotalCommunityMessages != 1 {
		t.Errorf("TotalCommunityMessages = %d, want 1", stats.TotalCommunityMessages)
	}
	// New accounts start with LastSeen at creation time.
	if stats.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2", stats.ActiveUsers)
	}
	if stats.SystemUptime < 90 {
		t.Errorf("SystemUptime = %d, want >= 90", stats.SystemUptime)
	}

	raw, _ := json.Marshal(stats)
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"totalChats", "totalUsers", "totalCommunityMessages", "activeUsers", "systemUptime"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("stats JSON missing %q: %s", key, raw)
		}
	}
}
