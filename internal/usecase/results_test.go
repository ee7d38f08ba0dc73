package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-check/internal/logging"
	"github.com/example/face-check/internal/repository"
	"github.com/example/face-check/internal/transient"
)

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newResultsUseCase(repo *stubRepository, cache Cache) *FaceUseCase {
	uc := NewFaceUseCase(repo, cache, nil, transient.NewDir(""), zap.NewNop())
	uc.cacheRetry.InitialBackoff = time.Millisecond
	uc.cacheRetry.MaxBackoff = 2 * time.Millisecond
	return uc
}

func TestGetResultFallsBackToRepositoryWhenCacheMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	expected := &repository.VerificationLog{RequestID: "req", Message: "from-db"}
	repo := &stubRepository{findLog: expected}
	uc := newResultsUseCase(repo, cache)

	log, err := uc.GetResult(context.Background(), "req")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if log != expected {
		t.Fatalf("expected %+v, got %+v", expected, log)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", repo.findCalls)
	}
	if len(cache.getKeys) != 1 {
		t.Fatalf("expected a cache miss not to be retried, got %d reads", len(cache.getKeys))
	}
}

func TestGetResultServesFromCache(t *testing.T) {
	distance := 0.12
	payload, _ := json.Marshal(cachedVerification{RequestID: "req", Success: true, MatchedName: "Alice", Distance: &distance})
	cache := &stubCache{getValues: []string{string(payload)}}
	repo := &stubRepository{}
	uc := newResultsUseCase(repo, cache)

	log, err := uc.GetResult(context.Background(), "req")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if log.MatchedName != "Alice" || !log.Success || *log.Distance != distance {
		t.Fatalf("unexpected log %+v", log)
	}
	if repo.findCalls != 0 {
		t.Fatal("expected repository not to be queried")
	}
}

func TestGetResultRetriesTransientCacheErrors(t *testing.T) {
	payload, _ := json.Marshal(cachedVerification{RequestID: "req", Message: "cached"})
	cache := &stubCache{
		getErrs:   []error{transientRedisError{}, nil},
		getValues: []string{"", string(payload)},
	}
	uc := newResultsUseCase(&stubRepository{}, cache)

	log, err := uc.GetResult(context.Background(), "req")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if log.Message != "cached" {
		t.Fatalf("unexpected log %+v", log)
	}
	if len(cache.getKeys) != 2 || cache.getKeys[0] != cache.getKeys[1] {
		t.Fatalf("expected one retry on the same key, got %v", cache.getKeys)
	}
}

func TestGetResultNotFound(t *testing.T) {
	uc := newResultsUseCase(&stubRepository{}, NopCache{})

	_, err := uc.GetResult(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithRedisRetryReturnsOperationError(t *testing.T) {
	uc := newResultsUseCase(&stubRepository{}, &stubCache{})

	err := uc.withRedisRetry(context.Background(), "req-1", "cache.set.result", func() error {
		return errors.New("boom")
	})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set.result" || opErr.RequestID != "req-1" {
		t.Fatalf("unexpected error %+v", opErr)
	}
}

func TestCacheFailureDoesNotChangeVerificationOutcome(t *testing.T) {
	f := newFixture(t)
	f.cache.setErrs = []error{errors.New("redis down")}

	res := f.uc.Verify(context.Background(), writeFile(t, []byte("probe")))
	if res.Message != MsgNoFacesInDB {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.repo.logs) != 1 {
		t.Fatalf("expected log to be saved, got %d", len(f.repo.logs))
	}
}

func TestGetMetricsSummary(t *testing.T) {
	uc := newResultsUseCase(&stubRepository{}, NopCache{})

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if summary.TotalRequests != 4 || summary.SuccessRate != 0.25 || summary.AverageDistance != 0.4 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
