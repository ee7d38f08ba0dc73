package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-check/internal/embedding"
	"github.com/example/face-check/internal/logging"
)

// Full method names of the embedding service. Requests and responses are
// google.protobuf.Struct values shaped like the DeepFace REST bodies:
// DetectFaces answers {results: [{facial_area, confidence}]} and Represent
// answers {results: [{embedding, facial_area, face_confidence}]}.
const (
	ServiceName         = "facecheck.v1.EmbeddingService"
	DetectFacesMethod   = "/" + ServiceName + "/DetectFaces"
	RepresentMethod     = "/" + ServiceName + "/Represent"
	defaultDialTimeout  = 5 * time.Second
	defaultCallDeadline = 2 * time.Minute
)

// DialEmbeddingService returns a ready-to-use gRPC embedding provider.
func DialEmbeddingService(ctx context.Context, addr string, callTimeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (embedding.Provider, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_embedding_service", "", err)
		logger.Error("failed to dial embedding service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewProvider(conn, callTimeout, logger), conn, nil
}

// NewProvider wraps an existing connection.
func NewProvider(conn grpc.ClientConnInterface, callTimeout time.Duration, logger *zap.Logger) embedding.Provider {
	if callTimeout <= 0 {
		callTimeout = defaultCallDeadline
	}
	return &grpcEmbeddingProvider{conn: conn, timeout: callTimeout, logger: logger.Named("grpc_embedding")}
}

type grpcEmbeddingProvider struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func (g *grpcEmbeddingProvider) DetectFaces(ctx context.Context, imagePath, backend string) ([]embedding.Detection, error) {
	img, err := embedding.EncodeDataURI(imagePath)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{
		"img":               img,
		"detector_backend":  backend,
		"enforce_detection": true,
		"align":             true,
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := g.invoke(ctx, DetectFacesMethod, req)
	if err != nil {
		return nil, err
	}

	results := resp.GetFields()["results"].GetListValue().GetValues()
	if len(results) == 0 {
		return nil, embedding.ErrNoFace
	}
	detections := make([]embedding.Detection, 0, len(results))
	for _, r := range results {
		fields := r.GetStructValue().GetFields()
		detections = append(detections, embedding.Detection{
			Area:       facialArea(fields["facial_area"]),
			Confidence: fields["confidence"].GetNumberValue(),
		})
	}
	return detections, nil
}

func (g *grpcEmbeddingProvider) Represent(ctx context.Context, imagePath string, opts embedding.RepresentOptions) ([]float64, error) {
	img, err := embedding.EncodeDataURI(imagePath)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{
		"img":               img,
		"model_name":        opts.Model,
		"detector_backend":  opts.Backend,
		"enforce_detection": opts.EnforceDetection,
		"align":             opts.Align,
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := g.invoke(ctx, RepresentMethod, req)
	if err != nil {
		return nil, err
	}

	results := resp.GetFields()["results"].GetListValue().GetValues()
	if len(results) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	values := results[0].GetStructValue().GetFields()["embedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	vec := make([]float64, len(values))
	for i, v := range values {
		vec[i] = v.GetNumberValue()
	}
	return vec, nil
}

func facialArea(v *structpb.Value) embedding.FacialArea {
	fields := v.GetStructValue().GetFields()
	return embedding.FacialArea{
		X: int(fields["x"].GetNumberValue()),
		Y: int(fields["y"].GetNumberValue()),
		W: int(fields["w"].GetNumberValue()),
		H: int(fields["h"].GetNumberValue()),
	}
}

func (g *grpcEmbeddingProvider) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(callCtx, method, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", embedding.ErrNoFace, status.Convert(err).Message())
		}
		wrapped := logging.NewOperationError("grpcclient"+method, "", err)
		g.logger.Error("embedding service call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return resp, nil
}
