package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/config"
	"github.com/trannm/healthpulse/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	seedTemplates(db)
	seedDemoUsers(db)
	printAdminHash()

	log.Println("🎉 Seeding completed!")
}

func seedTemplates(db *gorm.DB) {
	log.Println("🌱 Seeding notification templates...")

	templates := []model.Template{
		{
			Type:     model.TypeMorningSummary,
			Title:    "Your morning summary",
			Body:     "Here's how yesterday went and what's ahead.",
			Metadata: mustJSON(map[string]any{"highlight": "sleep"}),
		},
		{
			Type:  model.TypeAnomalyAlert,
			Title: "Unusual reading detected",
			Body:  "One of your recent metrics looks out of range.",
		},
		{
			Type:     model.TypeGoalProgress,
			Title:    "Goal progress",
			Body:     "You're making progress on your daily goal.",
			Metadata: mustJSON(map[string]any{"goal": "steps"}),
		},
		{
			Type:     model.TypeSyncReminder,
			Title:    "Time to sync",
			Body:     "Your data hasn't synced in a while. Open the app to refresh.",
			Metadata: mustJSON(map[string]any{"provider": "healthkit"}),
		},
		{
			Type:     model.TypeSystemAlert,
			Title:    "Service notice",
			Body:     "Scheduled maintenance tonight. Data sync may pause briefly.",
			Metadata: mustJSON(map[string]any{"code": "maintenance", "critical": false}),
		},
	}

	for _, tpl := range templates {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "body", "metadata", "updated_at"}),
		}).Create(&tpl).Error
		if err != nil {
			log.Printf("❌ Failed to seed template %s: %v", tpl.Type, err)
		} else {
			log.Printf("✅ Template: %s", tpl.Type)
		}
	}
}

func seedDemoUsers(db *gorm.DB) {
	log.Println("🌱 Seeding 3 demo users...")

	timezones := []string{"America/New_York", "Europe/Berlin", "Asia/Tokyo"}
	for i := 1; i <= 3; i++ {
		userID := uuid.New()
		tz := timezones[i-1]

		schedules := []model.Schedule{
			{UserID: userID, Type: model.TypeMorningSummary, LocalTime: "07:30", Timezone: tz, DaysOfWeek: model.AllDays, Enabled: true},
			{UserID: userID, Type: model.TypeGoalProgress, LocalTime: "18:00", Timezone: tz,
				DaysOfWeek: model.DayMask(0).With(time.Monday).With(time.Wednesday).With(time.Friday), Enabled: true},
			{UserID: userID, Type: model.TypeSyncReminder, LocalTime: "21:00", Timezone: tz, DaysOfWeek: model.AllDays, Enabled: i != 3},
		}
		for _, s := range schedules {
			if err := db.Create(&s).Error; err != nil {
				log.Printf("❌ Failed to create schedule: %v", err)
			}
		}

		device := model.DeviceRegistration{
			UserID:       userID,
			Token:        fmt.Sprintf("demo-token-%d", i),
			Platform:     []string{"ios", "android", "web"}[i-1],
			Active:       true,
			LastActiveAt: time.Now(),
		}
		if err := db.Create(&device).Error; err != nil {
			log.Printf("❌ Failed to create device: %v", err)
		}

		// Users 1 and 2 are past onboarding; user 3 hasn't finished backfill
		if i != 3 {
			completedAt := time.Now().Add(-48 * time.Hour)
			db.Create(&model.OnboardingStatus{
				UserID:              userID,
				BackfillComplete:    true,
				BackfillCompletedAt: &completedAt,
			})
			seedSamples(db, userID)
		}

		log.Printf("✅ User %d: %s (%s)", i, userID, tz)
	}
}

// seedSamples writes two weeks of heart-rate and step samples so the baseline
// check passes for the demo users.
func seedSamples(db *gorm.DB, userID uuid.UUID) {
	now := time.Now()
	var samples []model.HealthSample
	for day := 0; day < 14; day++ {
		at := now.AddDate(0, 0, -day)
		for hour := 8; hour <= 22; hour += 2 {
			samples = append(samples,
				model.HealthSample{
					UserID:     userID,
					Metric:     "heart_rate",
					Value:      60 + float64((day*hour)%25),
					RecordedAt: time.Date(at.Year(), at.Month(), at.Day(), hour, 0, 0, 0, time.UTC),
				},
				model.HealthSample{
					UserID:     userID,
					Metric:     "steps",
					Value:      float64(300 + (day*hour*7)%900),
					RecordedAt: time.Date(at.Year(), at.Month(), at.Day(), hour, 30, 0, 0, time.UTC),
				},
			)
		}
	}
	if err := db.CreateInBatches(samples, 200).Error; err != nil {
		log.Printf("❌ Failed to seed samples: %v", err)
	}
}

func printAdminHash() {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash admin password: %v", err)
	}
	log.Printf("🔑 Demo admin credentials: admin / admin123")
	log.Printf("   Set ADMIN_PASSWORD_HASH=%s", string(hash))
}

func mustJSON(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
