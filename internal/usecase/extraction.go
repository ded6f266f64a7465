package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/portrait-extractor/internal/logging"
	"github.com/example/portrait-extractor/internal/portrait"
	"github.com/example/portrait-extractor/internal/repository"
)

const cacheResultTTL = 5 * time.Minute

// ExtractionRepository defines the persistence operations needed by the use case.
type ExtractionRepository interface {
	SaveLog(ctx context.Context, log *repository.ExtractionLog) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Pipeline is the portrait extraction core invoked once per request.
type Pipeline interface {
	Extract(ctx context.Context, data []byte) portrait.Outcome
}

// ExtractionUseCase orchestrates caching, the extraction pipeline, and audit
// persistence for one request. Infrastructure failures (Redis, database)
// never fail a request whose extraction result is already known.
type ExtractionUseCase struct {
	repo           ExtractionRepository
	cache          Cache
	pipeline       Pipeline
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// cachedOutcome is the serialized form of a terminal pipeline outcome. The
// pipeline is deterministic, so outcomes can be replayed for identical
// uploads without re-running detection.
type cachedOutcome struct {
	Code           string `json:"code"`
	PortraitBase64 string `json:"portrait_base64,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// NewExtractionUseCase constructs a new use case instance.
func NewExtractionUseCase(repo ExtractionRepository, cache Cache, pipeline Pipeline, logger *zap.Logger) *ExtractionUseCase {
	return &ExtractionUseCase{
		repo:           repo,
		cache:          cache,
		pipeline:       pipeline,
		logger:         logger.Named("extraction_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// ExtractPortrait runs the extraction flow for one upload and returns the
// request id assigned to it together with the pipeline outcome.
func (uc *ExtractionUseCase) ExtractPortrait(ctx context.Context, imageBytes []byte) (string, portrait.Outcome) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.extract_portrait", requestID)

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := fmt.Sprintf("portrait:%s", hashHex)

	if outcome, ok := uc.lookupCachedOutcome(ctx, requestID, cacheKey); ok {
		opLogger.Info("serving cached extraction result",
			zap.String("sha1_hash", hashHex),
			zap.String("outcome", outcome.Code.String()))
		return requestID, outcome
	}

	start := time.Now()
	outcome := uc.pipeline.Extract(ctx, imageBytes)
	duration := time.Since(start)

	opLogger.Info("extraction completed",
		zap.String("sha1_hash", hashHex),
		zap.String("outcome", outcome.Code.String()),
		zap.Duration("duration", duration))

	uc.storeCachedOutcome(ctx, requestID, cacheKey, outcome)

	log := &repository.ExtractionLog{
		RequestID:  requestID,
		SHA1Hash:   hashHex,
		Outcome:    outcome.Code.String(),
		Width:      outcome.Width,
		Height:     outcome.Height,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		// The extraction already finished; losing the audit row is not a
		// reason to fail the caller.
		opLogger.Error("failed to persist extraction log", zap.Error(err))
	}

	return requestID, outcome
}

// GetMetricsSummary aggregates extraction metrics from persisted logs.
func (uc *ExtractionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		PortraitsExtracted: aggregation.SuccessCount,
		NoFaceResponses:    aggregation.NoFaceCount,
		AverageLatencyMs:   aggregation.AverageLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

func (uc *ExtractionUseCase) lookupCachedOutcome(ctx context.Context, requestID, cacheKey string) (portrait.Outcome, bool) {
	raw, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.lookup_cache", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return portrait.Outcome{}, false
	}

	var payload cachedOutcome
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logging.WithOperation(uc.logger, "usecase.lookup_cache", requestID).Warn("failed to decode cached result", zap.Error(err))
		return portrait.Outcome{}, false
	}

	switch payload.Code {
	case portrait.OutcomeSuccess.String():
		return portrait.Outcome{
			Code:           portrait.OutcomeSuccess,
			PortraitBase64: payload.PortraitBase64,
			Width:          payload.Width,
			Height:         payload.Height,
		}, true
	case portrait.OutcomeNoFaceFound.String():
		return portrait.Outcome{Code: portrait.OutcomeNoFaceFound}, true
	default:
		return portrait.Outcome{}, false
	}
}

func (uc *ExtractionUseCase) storeCachedOutcome(ctx context.Context, requestID, cacheKey string, outcome portrait.Outcome) {
	// Only deterministic terminal outcomes are worth replaying; faults and
	// decode errors carry request-specific detail and are cheap to recompute.
	if outcome.Code != portrait.OutcomeSuccess && outcome.Code != portrait.OutcomeNoFaceFound {
		return
	}

	payload := cachedOutcome{
		Code:           outcome.Code.String(),
		PortraitBase64: outcome.PortraitBase64,
		Width:          outcome.Width,
		Height:         outcome.Height,
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.store_cache", requestID).Warn("failed to serialize outcome", zap.Error(err))
		return
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), cacheResultTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.store_cache", requestID).Warn("failed to cache outcome", zap.Error(err))
	}
}

func (uc *ExtractionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return err
		}

		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *ExtractionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
