package repository

import (
	"context"
	"time"
)

// VerificationLog records the outcome of one verification attempt.
type VerificationLog struct {
	ID           uint      `gorm:"primaryKey"`
	RequestID    string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Success      bool      `gorm:"column:success"`
	MatchedName  string    `gorm:"column:matched_name;type:text"`
	Distance     *float64  `gorm:"column:distance"`
	Backend      string    `gorm:"column:backend;size:32"`
	Message      string    `gorm:"column:message;type:text"`
	ProcessingMs int64     `gorm:"column:processing_ms"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "verification_logs"
}

// MetricsAggregation is the raw aggregate over verification_logs.
type MetricsAggregation struct {
	TotalCount                 int64
	SuccessCount               int64
	AverageDistance            float64
	AverageProcessingLatencyMs float64
}

// SaveLog persists a verification log entry.
func (s *Store) SaveLog(ctx context.Context, log *VerificationLog) error {
	return s.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return s.db.WithContext(ctx).Create(log).Error
	})
}

// FindLogByRequestID retrieves the log written for a verification request.
func (s *Store) FindLogByRequestID(ctx context.Context, requestID string) (*VerificationLog, error) {
	var log VerificationLog
	err := s.executeWithRetry(ctx, "repository.find_log", requestID, func() error {
		return s.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarises every verification log.
func (s *Store) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount   int64
		SuccessCount int64
		AvgDistance  *float64
		AvgLatency   *float64
	}
	err := s.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return s.db.WithContext(ctx).Model(&VerificationLog{}).
			Select(
				"COUNT(*) AS total_count, " +
					"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count, " +
					"AVG(distance) AS avg_distance, " +
					"AVG(processing_ms) AS avg_latency",
			).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{TotalCount: row.TotalCount, SuccessCount: row.SuccessCount}
	if row.AvgDistance != nil {
		agg.AverageDistance = *row.AvgDistance
	}
	if row.AvgLatency != nil {
		agg.AverageProcessingLatencyMs = *row.AvgLatency
	}
	return agg, nil
}
