package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

const (
	AnalyzerServiceName = "medreport.v1.AnalyzerService"

	// FilenameMetadataKey carries the document filename alongside the
	// BytesValue request body.
	FilenameMetadataKey  = "x-filename"
	RequestIDMetadataKey = "x-request-id"
)

// AnalyzerServiceServer is the gRPC surface. Messages are protobuf
// well-known types so clients need no generated stubs.
type AnalyzerServiceServer interface {
	AnalyzeDocument(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
	ListFormats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// AnalyzerService implements AnalyzerServiceServer on top of a DocumentAnalyzer.
type AnalyzerService struct {
	analyzer DocumentAnalyzer
	logger   *slog.Logger
}

func NewAnalyzerService(analyzer DocumentAnalyzer, logger *slog.Logger) *AnalyzerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzerService{analyzer: analyzer, logger: logger}
}

func (s *AnalyzerService) AnalyzeDocument(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	filename := firstMetadata(ctx, FilenameMetadataKey)
	if filename == "" {
		return nil, common.InvalidArgumentErrorf("metadata %q is required", FilenameMetadataKey)
	}
	rec, err := s.analyzer.Analyze(ctx, filename, req.GetValue())
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out, err := recordStruct(rec)
	if err != nil {
		common.LoggerFrom(ctx, s.logger).Error("grpc.encode_failed", "error", err)
		return nil, common.InternalError("encoding record")
	}
	return out, nil
}

func (s *AnalyzerService) ListFormats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]any{"formats": SupportedFormats()})
}

func recordStruct(rec entity.StructuredRecord) (*structpb.Struct, error) {
	rec.Ensure()
	return toStruct(rec)
}

// toStruct goes through JSON so the gRPC payload matches the HTTP one.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// RecordFromStruct decodes an AnalyzeDocument response.
func RecordFromStruct(s *structpb.Struct) (entity.StructuredRecord, error) {
	var rec entity.StructuredRecord
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(raw, &rec)
	return rec, err
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func RegisterAnalyzerServiceServer(s grpc.ServiceRegistrar, srv AnalyzerServiceServer) {
	s.RegisterService(&analyzerServiceDesc, srv)
}

var analyzerServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalyzerServiceName,
	HandlerType: (*AnalyzerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeDocument", Handler: analyzeDocumentHandler},
		{MethodName: "ListFormats", Handler: listFormatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medreport/v1/analyzer.proto",
}

func analyzeDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServiceServer).AnalyzeDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AnalyzerServiceName + "/AnalyzeDocument"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServiceServer).AnalyzeDocument(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listFormatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServiceServer).ListFormats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AnalyzerServiceName + "/ListFormats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServiceServer).ListFormats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyzerClient calls AnalyzerService over an existing connection.
type AnalyzerClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalyzerClient(cc grpc.ClientConnInterface) *AnalyzerClient {
	return &AnalyzerClient{cc: cc}
}

func (c *AnalyzerClient) AnalyzeDocument(ctx context.Context, filename string, data []byte, opts ...grpc.CallOption) (entity.StructuredRecord, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, FilenameMetadataKey, filename)
	if id := common.RequestIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AnalyzerServiceName+"/AnalyzeDocument", wrapperspb.Bytes(data), out, opts...); err != nil {
		return entity.StructuredRecord{}, err
	}
	return RecordFromStruct(out)
}

func (c *AnalyzerClient) ListFormats(ctx context.Context, opts ...grpc.CallOption) ([]FormatInfo, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AnalyzerServiceName+"/ListFormats", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, err
	}
	var body struct {
		Formats []FormatInfo `json:"formats"`
	}
	err = json.Unmarshal(raw, &body)
	return body.Formats, err
}

// unaryLogging adopts the caller's request id and logs each call.
func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if id := firstMetadata(ctx, RequestIDMetadataKey); id != "" && len(id) <= 128 {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, _ = common.EnsureRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		common.LoggerFrom(ctx, logger).Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer builds a server with the analyzer, health and reflection
// services registered. The health status is SERVING on return.
func NewGRPCServer(analyzer DocumentAnalyzer, cfg common.ServerConfig, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(unaryLogging(logger))}, opts...)
	if cfg.MaxUploadBytes > 0 {
		// room for the envelope around the document bytes
		opts = append(opts, grpc.MaxRecvMsgSize(int(cfg.MaxUploadBytes)+64<<10))
	}
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AnalyzerServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)

	RegisterAnalyzerServiceServer(gs, NewAnalyzerService(analyzer, logger))
	return gs, hs
}
