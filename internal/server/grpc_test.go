package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

func dialBufconn(t *testing.T, fa *fakeAnalyzer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(fa, common.ServerConfig{}, nil)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCAnalyzeDocument(t *testing.T) {
	fa := &fakeAnalyzer{rec: okRecord()}
	client := NewAnalyzerClient(dialBufconn(t, fa))

	ctx := common.WithRequestID(context.Background(), "req-grpc-1")
	rec, err := client.AnalyzeDocument(ctx, "visit.txt", []byte("Diagnosis: Asthma"))
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if rec.ExtractionStatus != constants.StatusOK || len(rec.Conditions) != 1 || rec.Conditions[0] != "Asthma" {
		t.Errorf("record = %+v", rec)
	}
	if fa.filename != "visit.txt" || string(fa.data) != "Diagnosis: Asthma" {
		t.Errorf("analyzer saw %q %q", fa.filename, fa.data)
	}
	if fa.reqID != "req-grpc-1" {
		t.Errorf("request id = %q", fa.reqID)
	}
}

func TestGRPCErrors(t *testing.T) {
	t.Run("unsupported format", func(t *testing.T) {
		fa := &fakeAnalyzer{err: common.UnsupportedFormatError("blob.xyz")}
		client := NewAnalyzerClient(dialBufconn(t, fa))

		_, err := client.AnalyzeDocument(context.Background(), "blob.xyz", []byte("x"))
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.InvalidArgument {
			t.Fatalf("err = %v", err)
		}
		var reason string
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok {
				reason = info.Reason
			}
		}
		if reason != common.CodeUnsupportedFormat {
			t.Errorf("reason = %q", reason)
		}
	})

	t.Run("missing filename", func(t *testing.T) {
		conn := dialBufconn(t, &fakeAnalyzer{})
		_, err := NewAnalyzerClient(conn).AnalyzeDocument(context.Background(), "", []byte("x"))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestGRPCListFormatsAndHealth(t *testing.T) {
	conn := dialBufconn(t, &fakeAnalyzer{})

	formats, err := NewAnalyzerClient(conn).ListFormats(context.Background())
	if err != nil {
		t.Fatalf("ListFormats: %v", err)
	}
	if len(formats) != len(constants.Formats) || formats[0].Format != constants.PlainText {
		t.Errorf("formats = %+v", formats)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: AnalyzerServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %s", resp.GetStatus())
	}
}
