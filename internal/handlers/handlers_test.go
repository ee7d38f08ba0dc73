package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/example/face-check/internal/repository"
	"github.com/example/face-check/internal/transient"
	"github.com/example/face-check/internal/usecase"
)

type stubService struct {
	registeredName string
	stagedPath     string
	stagedExisted  bool
	verifyResult   usecase.Result
	users          []usecase.UserView
	countErr       error
	log            *repository.VerificationLog
	logErr         error
	metrics        *usecase.MetricsSummary
}

func (s *stubService) Register(_ context.Context, imagePath, name string) usecase.Result {
	s.registeredName = name
	s.observe(imagePath)
	return usecase.Result{Success: true, Message: usecase.MsgRegistered, IdentityID: 7}
}

func (s *stubService) Verify(_ context.Context, imagePath string) usecase.Result {
	s.observe(imagePath)
	return s.verifyResult
}

func (s *stubService) ListUsers(context.Context) ([]usecase.UserView, error) {
	return s.users, nil
}

func (s *stubService) CountUsers(context.Context) (int64, error) {
	return int64(len(s.users)), s.countErr
}

func (s *stubService) GetResult(context.Context, string) (*repository.VerificationLog, error) {
	return s.log, s.logErr
}

func (s *stubService) GetMetricsSummary(context.Context) (*usecase.MetricsSummary, error) {
	return s.metrics, nil
}

func (s *stubService) observe(path string) {
	s.stagedPath = path
	_, err := os.Stat(path)
	s.stagedExisted = err == nil
}

func newRouter(t *testing.T, svc FaceService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, transient.NewDir(t.TempDir()))
	return router
}

func TestVerifyRejectsLargeUpload(t *testing.T) {
	router := newRouter(t, &stubService{})

	body, contentType := buildMultipartBody(t, nil, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestVerifyRejectsUnsupportedContentType(t *testing.T) {
	router := newRouter(t, &stubService{})

	body, contentType := buildMultipartBody(t, nil, "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestVerifyRejectsUndecodableImage(t *testing.T) {
	router := newRouter(t, &stubService{})

	body, contentType := buildMultipartBody(t, nil, "image/png", []byte("not really a png"))

	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestVerifyRequiresImage(t *testing.T) {
	router := newRouter(t, &stubService{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestVerifyReturnsOutcomeAndReleasesUpload(t *testing.T) {
	distance := 0.5
	svc := &stubService{verifyResult: usecase.Result{
		RequestID: "req-1",
		Message:   "No match found in database (Best distance: 0.50)",
		Distance:  &distance,
		Backend:   "retinaface",
	}}
	router := newRouter(t, svc)

	body, contentType := buildMultipartBody(t, nil, "image/png", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for a domain outcome, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["success"] != false || payload["request_id"] != "req-1" || payload["distance"] != 0.5 {
		t.Fatalf("unexpected payload %v", payload)
	}

	if !svc.stagedExisted {
		t.Fatal("expected the upload to be staged while verifying")
	}
	if _, err := os.Stat(svc.stagedPath); !os.IsNotExist(err) {
		t.Fatalf("expected staged upload to be removed, stat err=%v", err)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	svc := &stubService{}
	router := newRouter(t, svc)

	body, contentType := buildMultipartBody(t, map[string]string{"name": "  "}, "image/png", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/register", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if svc.registeredName != "" {
		t.Fatal("register should not be called without a name")
	}
}

func TestRegisterPassesNameAndReturnsID(t *testing.T) {
	svc := &stubService{}
	router := newRouter(t, svc)

	body, contentType := buildMultipartBody(t, map[string]string{"name": " Alice "}, "image/png", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/register", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.registeredName != "Alice" {
		t.Fatalf("expected trimmed name, got %q", svc.registeredName)
	}

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		ID      uint   `json:"id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success || payload.ID != 7 || payload.Message != usecase.MsgRegistered {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestResultNotFound(t *testing.T) {
	router := newRouter(t, &stubService{logErr: repository.ErrNotFound})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/result/missing", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestResultFound(t *testing.T) {
	router := newRouter(t, &stubService{log: &repository.VerificationLog{
		RequestID:   "req-9",
		Success:     true,
		MatchedName: "Bob",
		Message:     "Match found! Person: Bob (Confidence: 90.00%)",
	}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/result/req-9", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"matched_name":"Bob"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestIndexListsUsers(t *testing.T) {
	router := newRouter(t, &stubService{users: []usecase.UserView{{ID: 3, Name: "Carol", Image: "aGVsbG8="}}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "Registered Users (1)") || !strings.Contains(body, "Carol") {
		t.Fatalf("index page missing user listing: %s", body)
	}
}

func TestMetrics(t *testing.T) {
	router := newRouter(t, &stubService{metrics: &usecase.MetricsSummary{TotalRequests: 4, SuccessfulRequests: 1, SuccessRate: 0.25}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"success_rate":0.25`) {
		t.Fatalf("unexpected metrics response %d %s", resp.Code, resp.Body.String())
	}
}

func TestHealthReportsRegisteredCount(t *testing.T) {
	router := newRouter(t, &stubService{users: []usecase.UserView{{ID: 1}, {ID: 2}}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var payload struct {
		Status     string `json:"status"`
		Registered int64  `json:"registered"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Registered != 2 {
		t.Fatalf("unexpected health payload %+v", payload)
	}
}

func TestHealthUnavailableWhenStoreFails(t *testing.T) {
	router := newRouter(t, &stubService{countErr: errors.New("database is locked")})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.Code)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, fields map[string]string, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %s: %v", key, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}
