package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-check/internal/embedding"
	"github.com/example/face-check/internal/logging"
)

const defaultTimeout = 2 * time.Minute

// Client talks to a DeepFace REST service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("deepface"),
	}
}

type extractRequest struct {
	Img              string `json:"img"`
	DetectorBackend  string `json:"detector_backend"`
	EnforceDetection bool   `json:"enforce_detection"`
	Align            bool   `json:"align"`
}

type extractResponse struct {
	Results []struct {
		FacialArea embedding.FacialArea `json:"facial_area"`
		Confidence float64              `json:"confidence"`
	} `json:"results"`
}

type representRequest struct {
	Img              string `json:"img"`
	ModelName        string `json:"model_name"`
	DetectorBackend  string `json:"detector_backend"`
	EnforceDetection bool   `json:"enforce_detection"`
	Align            bool   `json:"align"`
}

type representResponse struct {
	Results []struct {
		Embedding      []float64            `json:"embedding"`
		FacialArea     embedding.FacialArea `json:"facial_area"`
		FaceConfidence float64              `json:"face_confidence"`
	} `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// DetectFaces runs the given detector backend over the image.
func (c *Client) DetectFaces(ctx context.Context, imagePath, backend string) ([]embedding.Detection, error) {
	img, err := embedding.EncodeDataURI(imagePath)
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	req := extractRequest{Img: img, DetectorBackend: backend, EnforceDetection: true, Align: true}
	if err := c.post(ctx, "/extract_faces", req, &resp); err != nil {
		return nil, logging.NewOperationError("deepface.extract_faces", "", err)
	}
	if len(resp.Results) == 0 {
		return nil, embedding.ErrNoFace
	}

	detections := make([]embedding.Detection, 0, len(resp.Results))
	for _, r := range resp.Results {
		detections = append(detections, embedding.Detection{Area: r.FacialArea, Confidence: r.Confidence})
	}
	return detections, nil
}

// Represent returns the embedding of the first face the service reports.
func (c *Client) Represent(ctx context.Context, imagePath string, opts embedding.RepresentOptions) ([]float64, error) {
	img, err := embedding.EncodeDataURI(imagePath)
	if err != nil {
		return nil, err
	}

	var resp representResponse
	req := representRequest{
		Img:              img,
		ModelName:        opts.Model,
		DetectorBackend:  opts.Backend,
		EnforceDetection: opts.EnforceDetection,
		Align:            opts.Align,
	}
	if err := c.post(ctx, "/represent", req, &resp); err != nil {
		return nil, logging.NewOperationError("deepface.represent", "", err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Results[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("deepface call finished",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if isNoFaceMessage(apiErr.Error) {
				return fmt.Errorf("%w: %s", embedding.ErrNoFace, apiErr.Error)
			}
			return fmt.Errorf("deepface error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("deepface error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isNoFaceMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "face could not be detected")
}

var _ embedding.Provider = (*Client)(nil)
