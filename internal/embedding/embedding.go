package embedding

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// ErrNoFace is returned when a detector finds no face in the image.
var ErrNoFace = errors.New("face could not be detected")

// Detector backends understood by the provider.
const (
	BackendRetinaFace = "retinaface"
	BackendMTCNN      = "mtcnn"
	BackendOpenCV     = "opencv"
)

// ModelGhostFaceNet is the embedding model used for enrolment and matching.
const ModelGhostFaceNet = "GhostFaceNet"

// FacialArea is a detected face region in pixel coordinates.
type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is one face found by a detector backend.
type Detection struct {
	Area       FacialArea
	Confidence float64
}

// RepresentOptions selects how an embedding is extracted.
type RepresentOptions struct {
	Model            string
	Backend          string
	EnforceDetection bool
	Align            bool
}

// Provider is the external face library: detection and embedding extraction
// for an image addressed by file path.
type Provider interface {
	DetectFaces(ctx context.Context, imagePath, backend string) ([]Detection, error)
	Represent(ctx context.Context, imagePath string, opts RepresentOptions) ([]float64, error)
}

// EncodeDataURI reads the image file and returns it as a base64 data URI,
// the inline form remote providers accept.
func EncodeDataURI(imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
