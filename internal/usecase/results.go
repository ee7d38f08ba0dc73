package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-check/internal/logging"
	"github.com/example/face-check/internal/repository"
)

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	SuccessfulRequests         int64   `json:"successful_requests"`
	SuccessRate                float64 `json:"success_rate"`
	AverageDistance            float64 `json:"average_distance"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

type cachedVerification struct {
	RequestID    string    `json:"request_id"`
	Success      bool      `json:"success"`
	MatchedName  string    `json:"matched_name,omitempty"`
	Distance     *float64  `json:"distance,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	Message      string    `json:"message"`
	ProcessingMs int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// record persists and caches a verification outcome. Failures here are
// logged and never change the result returned to the caller.
func (uc *FaceUseCase) record(ctx context.Context, result Result, elapsed time.Duration) {
	opLogger := logging.WithOperation(uc.logger, "usecase.record_result", result.RequestID)

	log := &repository.VerificationLog{
		RequestID:    result.RequestID,
		Success:      result.Success,
		MatchedName:  result.MatchedName,
		Distance:     result.Distance,
		Backend:      result.Backend,
		Message:      result.Message,
		ProcessingMs: elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist verification log", zap.Error(err))
	}

	serialized, err := json.Marshal(cachedVerification{
		RequestID:    log.RequestID,
		Success:      log.Success,
		MatchedName:  log.MatchedName,
		Distance:     log.Distance,
		Backend:      log.Backend,
		Message:      log.Message,
		ProcessingMs: log.ProcessingMs,
		CreatedAt:    log.CreatedAt,
	})
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return
	}

	if err := uc.withRedisRetry(ctx, result.RequestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, resultCacheKey(result.RequestID), string(serialized), resultCacheTTL)
	}); err != nil {
		opLogger.Error("failed to cache verification result", zap.Error(err))
	}
}

// GetResult retrieves a cached verification outcome or loads it from persistence.
func (uc *FaceUseCase) GetResult(ctx context.Context, requestID string) (*repository.VerificationLog, error) {
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultCacheKey(requestID)); err == nil {
		var payload cachedVerification
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else {
			return &repository.VerificationLog{
				RequestID:    requestID,
				Success:      payload.Success,
				MatchedName:  payload.MatchedName,
				Distance:     payload.Distance,
				Backend:      payload.Backend,
				Message:      payload.Message,
				ProcessingMs: payload.ProcessingMs,
				CreatedAt:    payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindLogByRequestID(ctx, requestID)
}

// GetMetricsSummary aggregates verification metrics from persisted logs.
func (uc *FaceUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		SuccessfulRequests:         aggregation.SuccessCount,
		AverageDistance:            aggregation.AverageDistance,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

// withRedisRetry retries transient cache failures; a cache miss (redis.Nil)
// is returned at once.
func (uc *FaceUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return uc.cacheRetry.Do(ctx, uc.logger, operation, requestID, fn)
}

func (uc *FaceUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
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
