package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/portrait-extractor/internal/logging"
)

// ExtractionLog is the persisted audit record of one extraction request.
// Only outcome metadata is stored; uploaded pixels never reach the database.
type ExtractionLog struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	SHA1Hash   string    `gorm:"column:sha1_hash;index;size:40"`
	Outcome    string    `gorm:"column:outcome;size:32"`
	Width      int       `gorm:"column:width"`
	Height     int       `gorm:"column:height"`
	DurationMs int64     `gorm:"column:duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ExtractionLog) TableName() string {
	return "extraction_logs"
}

// MetricsAggregation holds aggregate values computed over extraction logs.
type MetricsAggregation struct {
	TotalCount       int64   `gorm:"column:total_count"`
	SuccessCount     int64   `gorm:"column:success_count"`
	NoFaceCount      int64   `gorm:"column:no_face_count"`
	AverageLatencyMs float64 `gorm:"column:average_latency_ms"`
}

// ExtractionRepository provides persistence APIs for extraction logs.
type ExtractionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewExtractionRepository creates a new repository instance.
func NewExtractionRepository(db *gorm.DB, logger *zap.Logger) *ExtractionRepository {
	return &ExtractionRepository{
		db:             db,
		logger:         logger.Named("extraction_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ExtractionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ExtractionLog{})
}

// SaveLog persists an extraction log entry.
func (r *ExtractionRepository) SaveLog(ctx context.Context, log *ExtractionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// AggregateMetrics computes summary statistics over all extraction logs.
func (r *ExtractionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var aggregation MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ExtractionLog{}).
			Select(
				"COUNT(*) AS total_count, "+
					"COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS success_count, "+
					"COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS no_face_count, "+
					"COALESCE(AVG(duration_ms), 0) AS average_latency_ms",
				"success", "no_face_found",
			).
			Scan(&aggregation).Error
	})
	if err != nil {
		return nil, err
	}
	return &aggregation, nil
}

func (r *ExtractionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !logging.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
