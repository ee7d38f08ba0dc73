package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-check/internal/detector"
	"github.com/example/face-check/internal/embedding"
	"github.com/example/face-check/internal/imagecodec"
	"github.com/example/face-check/internal/logging"
	"github.com/example/face-check/internal/matching"
	"github.com/example/face-check/internal/repository"
	"github.com/example/face-check/internal/retry"
	"github.com/example/face-check/internal/transient"
)

// User-facing messages.
const (
	MsgRegistered     = "Face registered successfully!"
	MsgNoFacesInDB    = "No faces in database"
	MsgInvalidPath    = "Invalid image path"
	MsgNoFaceDetected = "No face detected in the image. Please try again."
	MsgProbeFailed    = "Failed to process input image"
	registerErrPrefix = "Error registering face: "
	verifyErrPrefix   = "Error during verification: "
	resultCacheTTL    = 5 * time.Minute
)

// FaceRepository defines the persistence operations needed by the use case.
type FaceRepository interface {
	Insert(ctx context.Context, name string, image []byte) (uint, error)
	Count(ctx context.Context) (int64, error)
	ListAll(ctx context.Context) ([]repository.Identity, error)
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindLogByRequestID(ctx context.Context, requestID string) (*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Result is the outcome of a registration or verification. Success=false
// with a message is a normal outcome, not a system failure.
type Result struct {
	RequestID   string   `json:"request_id,omitempty"`
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	IdentityID  uint     `json:"id,omitempty"`
	MatchedName string   `json:"matched_name,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Backend     string   `json:"backend,omitempty"`
	Candidates  int      `json:"candidates,omitempty"`
}

// UserView is a registered identity prepared for display.
type UserView struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressFunc is called after each stored identity is scanned.
type ProgressFunc func(done, total int)

// FaceUseCase encapsulates registration and verification.
type FaceUseCase struct {
	repo       FaceRepository
	cache      Cache
	provider   embedding.Provider
	enroller   detector.Detector
	chain      *detector.Chain
	temp       *transient.Dir
	logger     *zap.Logger
	mu         sync.Mutex
	cacheRetry retry.Policy
}

// NewFaceUseCase constructs a use case. Enrolment always uses retinaface;
// verification falls back through retinaface, mtcnn and opencv.
func NewFaceUseCase(repo FaceRepository, cache Cache, provider embedding.Provider, temp *transient.Dir, logger *zap.Logger) *FaceUseCase {
	if cache == nil {
		cache = NopCache{}
	}
	named := logger.Named("face_usecase")
	return &FaceUseCase{
		repo:       repo,
		cache:      cache,
		provider:   provider,
		enroller:   detector.NewBackend(provider, embedding.BackendRetinaFace),
		chain:      detector.DefaultChain(provider, named),
		temp:       temp,
		logger:     named,
		cacheRetry: retry.Default(redis.Nil),
	}
}

// Register stores the image under name once it is confirmed to contain a
// face. Detection runs on the re-encoded bytes that get stored, so what is
// stored is exactly what was checked. Nothing is written unless every step
// succeeds.
func (uc *FaceUseCase) Register(ctx context.Context, imagePath, name string) Result {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	opLogger := logging.WithOperation(uc.logger, "usecase.register", "")
	fail := func(err error) Result {
		opLogger.Warn("registration failed", zap.Error(err), zap.String("failed_operation", logging.OperationName(err)))
		return Result{Message: registerErrPrefix + err.Error()}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fail(errors.New("name is required"))
	}
	if _, err := os.Stat(imagePath); err != nil {
		return fail(err)
	}

	encoded, err := imagecodec.EncodeFileAsJPEG(imagePath)
	if err != nil {
		return fail(err)
	}

	stagedPath, release, err := uc.temp.Write("register", encoded)
	if err != nil {
		return fail(err)
	}
	defer release()

	faces, err := uc.enroller.Detect(ctx, stagedPath)
	if err != nil {
		return fail(err)
	}
	if len(faces) > 1 {
		opLogger.Info("multiple faces detected, enrolling image as is", zap.Int("faces", len(faces)))
	}

	id, err := uc.repo.Insert(ctx, name, encoded)
	if err != nil {
		return fail(err)
	}

	opLogger.Info("face registered", zap.Uint("id", id), zap.String("name", name))
	return Result{Success: true, Message: MsgRegistered, IdentityID: id}
}

// Verify finds the registered identity closest to the face in imagePath.
func (uc *FaceUseCase) Verify(ctx context.Context, imagePath string) Result {
	return uc.VerifyWithProgress(ctx, imagePath, nil)
}

// VerifyWithProgress is Verify with a callback reporting scan progress.
func (uc *FaceUseCase) VerifyWithProgress(ctx context.Context, imagePath string, progress ProgressFunc) Result {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	requestID := uuid.NewString()
	start := time.Now()
	result := uc.verify(ctx, requestID, imagePath, progress)
	result.RequestID = requestID
	// the outcome is recorded even when the caller has gone away
	uc.record(context.WithoutCancel(ctx), result, time.Since(start))
	return result
}

func (uc *FaceUseCase) verify(ctx context.Context, requestID, imagePath string, progress ProgressFunc) Result {
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID)
	unexpected := func(err error) Result {
		opLogger.Error("verification error", zap.Error(err), zap.String("failed_operation", logging.OperationName(err)))
		return Result{Message: verifyErrPrefix + err.Error()}
	}

	count, err := uc.repo.Count(ctx)
	if err != nil {
		return unexpected(err)
	}
	if count == 0 {
		return Result{Message: MsgNoFacesInDB}
	}

	if info, err := os.Stat(imagePath); err != nil || !info.Mode().IsRegular() {
		opLogger.Info("invalid probe path", zap.String("path", imagePath), zap.Error(err))
		return Result{Message: MsgInvalidPath}
	}
	probePath, release, err := uc.temp.Copy("temp_input", imagePath)
	if err != nil {
		return unexpected(err)
	}
	defer release()

	winner, _, err := uc.chain.Detect(ctx, probePath)
	if err != nil {
		if ctx.Err() != nil {
			return unexpected(ctx.Err())
		}
		return Result{Message: MsgNoFaceDetected}
	}
	backend := winner.Name()

	opts := embedding.RepresentOptions{
		Model:            embedding.ModelGhostFaceNet,
		Backend:          backend,
		EnforceDetection: false,
		Align:            true,
	}
	probe, err := uc.provider.Represent(ctx, probePath, opts)
	if err != nil {
		opLogger.Warn("probe embedding failed", zap.String("backend", backend), zap.Error(err))
		return Result{Message: MsgProbeFailed, Backend: backend}
	}

	identities, err := uc.repo.ListAll(ctx)
	if err != nil {
		return unexpected(err)
	}

	var best matching.Best
	for i, identity := range identities {
		if err := ctx.Err(); err != nil {
			return unexpected(err)
		}
		distance, err := uc.score(ctx, identity, probe, opts)
		if err != nil {
			opLogger.Warn("skipping stored identity", zap.Uint("id", identity.ID), zap.String("name", identity.Name), zap.Error(err))
		} else {
			opLogger.Debug("distance computed", zap.String("name", identity.Name), zap.Float64("distance", distance))
			best.Observe(matching.Candidate{ID: identity.ID, Name: identity.Name, Distance: distance})
		}
		if progress != nil {
			progress(i+1, len(identities))
		}
	}

	return decide(best, backend)
}

// score materializes one stored image, embeds it and measures its distance to
// the probe. The transient file is gone when score returns.
func (uc *FaceUseCase) score(ctx context.Context, identity repository.Identity, probe []float64, opts embedding.RepresentOptions) (float64, error) {
	path, release, err := uc.temp.Write(fmt.Sprintf("temp_%d", identity.ID), identity.Image)
	if err != nil {
		return 0, err
	}
	defer release()

	candidate, err := uc.provider.Represent(ctx, path, opts)
	if err != nil {
		return 0, err
	}
	return matching.CosineDistance(probe, candidate)
}

func decide(best matching.Best, backend string) Result {
	candidate, ok := best.Candidate()
	if !ok {
		return Result{
			Message: "No match found in database (Best distance: inf)",
			Backend: backend,
		}
	}

	distance := candidate.Distance
	if matching.IsMatch(distance) {
		confidence := matching.Confidence(distance)
		return Result{
			Success:     true,
			Message:     fmt.Sprintf("Match found! Person: %s (Confidence: %.2f%%)", candidate.Name, confidence),
			IdentityID:  candidate.ID,
			MatchedName: candidate.Name,
			Distance:    &distance,
			Confidence:  confidence,
			Backend:     backend,
			Candidates:  best.Seen(),
		}
	}
	return Result{
		Message:    fmt.Sprintf("No match found in database (Best distance: %.2f)", distance),
		Distance:   &distance,
		Backend:    backend,
		Candidates: best.Seen(),
	}
}

// ListUsers returns every registered identity, most recent first, with the
// image base64 encoded for display.
func (uc *FaceUseCase) ListUsers(ctx context.Context) ([]UserView, error) {
	identities, err := uc.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]UserView, 0, len(identities))
	for _, identity := range identities {
		users = append(users, UserView{
			ID:        identity.ID,
			Name:      identity.Name,
			Image:     base64.StdEncoding.EncodeToString(identity.Image),
			CreatedAt: identity.CreatedAt,
		})
	}
	return users, nil
}

// CountUsers returns the number of registered identities.
func (uc *FaceUseCase) CountUsers(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}
