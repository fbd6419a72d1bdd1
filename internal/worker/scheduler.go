package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/napoleonai/inbox/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Parse timezone from config
	location, err := time.LoadLocation(cfg.DigestTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.DigestTimezone, "error", err)
		location = time.UTC
	}

	// Create logger for scheduler
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	// Register the daily digest task
	digestTask := asynq.NewTask(
		TaskDailyDigest,
		nil, // Empty payload - handler queries all users
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(24*time.Hour), // Prevent duplicate if scheduler runs twice
	)

	digestEntryID, err := scheduler.Register(cfg.DigestSchedule, digestTask)
	if err != nil {
		return nil, fmt.Errorf("failed to register digest schedule: %w", err)
	}

	// Register the per-minute snooze wake sweep
	wakeTask := asynq.NewTask(
		TaskSnoozeWake,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(1*time.Minute),
		asynq.Unique(time.Minute),
	)

	wakeEntryID, err := scheduler.Register("@every 1m", wakeTask)
	if err != nil {
		return nil, fmt.Errorf("failed to register snooze wake schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"digest_schedule", cfg.DigestSchedule,
		"timezone", cfg.DigestTimezone,
		"digest_entry_id", digestEntryID,
		"snooze_wake_entry_id", wakeEntryID,
	)

	// Return shutdown function
	return func() { scheduler.Shutdown() }, nil
}
