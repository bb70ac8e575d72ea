package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"meetscribe/internal/store"
)

// Scheduler periodically sweeps for action items whose due date has
// passed and emits reminders for them, once each.
type Scheduler struct {
	Store    *store.Store
	Rdb      *redis.Client
	CronSpec string
	Stop     chan struct{}

	lastRun *time.Time
	logger  *log.Logger
}

func (s *Scheduler) Start() {
	s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if !isDue(s.CronSpec, s.lastRun) {
		return
	}

	// distributed lock to avoid duplicate sweeps across replicas
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "reminders:lock", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "reminders:lock")
	}

	now := time.Now()
	s.lastRun = &now

	items, err := s.Store.DueActionItems(ctx, now)
	if err != nil {
		s.logger.Printf("due action items: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		s.logger.Printf("reminder: action item %q (meeting %s) was due %s", it.Title, it.MeetingID, it.DueDate.Format("2006-01-02"))
		ids = append(ids, it.ID)
	}
	if err := s.Store.MarkActionItemsReminded(ctx, ids); err != nil {
		s.logger.Printf("mark reminded: %v", err)
	}
}

// isDue determines if a sweep with cronSpec should run now based on the last
// sweep time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @hourly if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
