package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/models"
)

// PostgresStore keeps the three record kinds in postgres tables. JSON columns are written
// whole, so updates keep the same last-writer-wins behaviour as the other backends.
type PostgresStore struct {
	db *gorm.DB
}

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(
		&models.Content{},
		&models.PublishingJob{},
		&models.PublishingOrchestrationResult{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	if err := s.db.WithContext(ctx).First(&content, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &content, nil
}

func (s *PostgresStore) UpdateContentPublishingResults(ctx context.Context, id string, results []models.PublishingRecord, updatedAt string) error {
	if results == nil {
		results = []models.PublishingRecord{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Content{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"publishing_results": string(encoded),
			"updated_at":         updatedAt,
		}).Error
}

func (s *PostgresStore) PutJob(ctx context.Context, job *models.PublishingJob) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.PublishingJob, error) {
	var job models.PublishingJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id string, u JobUpdate) error {
	updates := map[string]any{"updated_at": u.UpdatedAt}
	if u.Status != "" {
		updates["status"] = string(u.Status)
	}
	if u.Attempts != nil {
		updates["attempts"] = *u.Attempts
	}
	if u.LastError != nil {
		updates["last_error"] = *u.LastError
	}
	if u.Result != nil {
		encoded, err := json.Marshal(u.Result)
		if err != nil {
			return err
		}
		updates["result"] = string(encoded)
	}
	if u.NextRetryAt != nil {
		updates["next_retry_at"] = *u.NextRetryAt
	}
	return s.db.WithContext(ctx).Model(&models.PublishingJob{}).Where("id = ?", id).Updates(updates).Error
}

func (s *PostgresStore) QueryJobsByOrchestration(ctx context.Context, orchestrationID string) ([]*models.PublishingJob, error) {
	var jobs []*models.PublishingJob
	if err := s.db.WithContext(ctx).
		Where("orchestration_id = ?", orchestrationID).
		Order("id").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *PostgresStore) PutOrchestration(ctx context.Context, orchestration *models.PublishingOrchestrationResult) error {
	return s.db.WithContext(ctx).Save(orchestration).Error
}

func (s *PostgresStore) GetOrchestration(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	var orchestration models.PublishingOrchestrationResult
	if err := s.db.WithContext(ctx).First(&orchestration, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &orchestration, nil
}

func (s *PostgresStore) UpdateOrchestrationStatus(ctx context.Context, jobID string, status models.OrchestrationStatus, updatedAt string) error {
	return s.db.WithContext(ctx).Model(&models.PublishingOrchestrationResult{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": updatedAt,
		}).Error
}

func (s *PostgresStore) UpdateOrchestrationJob(ctx context.Context, jobID string, job *models.PublishingJob) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orchestration models.PublishingOrchestrationResult
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&orchestration, "job_id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if orchestration.Jobs == nil {
			orchestration.Jobs = make(map[string]*models.PublishingJob)
		}
		orchestration.Jobs[job.Platform] = job

		encoded, err := json.Marshal(orchestration.Jobs)
		if err != nil {
			return err
		}
		return tx.Model(&models.PublishingOrchestrationResult{}).
			Where("job_id = ?", jobID).
			Update("jobs", string(encoded)).Error
	})
}
