package repository

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// queueTestRepo opens the database named by TEST_DATABASE_DSN, skipping the
// test when none is configured. Claim's mutual exclusion lives in a single
// conditional UPDATE, so it can only be exercised against real storage.
func queueTestRepo(t *testing.T) *QueueRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.QueueEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM queue_entries")
	})
	return NewQueueRepository(db)
}

func seedEntry(t *testing.T, repo *QueueRepository, status model.QueueStatus, attempts int, nextRetryAt *time.Time, now time.Time) uuid.UUID {
	t.Helper()
	entry := &model.QueueEntry{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Type:            model.TypeMorningSummary,
		LocalDateKey:    now.Format("2006-01-02"),
		Title:           "Good morning",
		Body:            "Your summary is ready",
		ScheduledForUTC: now.Add(-10 * time.Minute),
		Status:          status,
		Attempts:        attempts,
		MaxAttempts:     3,
		NextRetryAt:     nextRetryAt,
	}
	if err := repo.db.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entry.ID
}

func TestQueueRepository_ClaimRetryDueEntryWonOnce(t *testing.T) {
	repo := queueTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)
	retryAt := now.Add(-time.Minute)
	id := seedEntry(t, repo, model.StatusProcessing, 1, &retryAt, now)

	first, err := repo.Claim(id, now)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil {
		t.Fatal("retry-due entry must be claimable")
	}
	if first.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", first.Attempts)
	}
	if first.NextRetryAt == nil || !first.NextRetryAt.After(now) {
		t.Fatalf("claim must push next_retry_at past now, got %v", first.NextRetryAt)
	}

	second, err := repo.Claim(id, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatalf("second claim also won: attempts=%d status=%s", second.Attempts, second.Status)
	}
}

func TestQueueRepository_ClaimConcurrentSingleWinner(t *testing.T) {
	repo := queueTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)
	id := seedEntry(t, repo, model.StatusScheduled, 0, nil, now)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan *model.QueueEntry, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := repo.Claim(id, now)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if e != nil {
				wins <- e
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("%d of %d concurrent claims won, want exactly 1", winners, workers)
	}
	e, err := repo.FindByID(id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if e.Attempts != 1 {
		t.Fatalf("attempts = %d after one winning claim, want 1", e.Attempts)
	}
}

func TestQueueRepository_CrashedClaimResurfacesAfterVisibility(t *testing.T) {
	repo := queueTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)
	id := seedEntry(t, repo, model.StatusScheduled, 0, nil, now)

	if e, err := repo.Claim(id, now); err != nil || e == nil {
		t.Fatalf("first claim: entry=%v err=%v", e, err)
	}
	// No outcome recorded: the dispatcher died here. The entry stays
	// invisible for the visibility window, then becomes claimable again.
	if e, err := repo.Claim(id, now); err != nil || e != nil {
		t.Fatalf("entry claimable inside the visibility window: entry=%v err=%v", e, err)
	}

	later := now.Add(claimVisibility + time.Second)
	e, err := repo.Claim(id, later)
	if err != nil {
		t.Fatalf("claim after visibility: %v", err)
	}
	if e == nil {
		t.Fatal("crashed dispatch must resurface after the visibility window")
	}
	if e.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", e.Attempts)
	}
}
