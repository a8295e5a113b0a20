package rpc

import (
	"context"
	"math"
	"net"
	"os"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/slr-reduction/kb"
)

const (
	stationsFixture = "../sinex/testdata/slrf_small.snx"
	eccXYZFixture   = "../sinex/testdata/ecc_xyz.snx"
	eccUNEFixture   = "../sinex/testdata/ecc_une.snx"
	crdFixture      = "../crd/testdata/graz_lageos1.npt"
)

func loadedCatalog(t *testing.T, eccPath string) *kb.StationCatalog {
	t.Helper()
	cat := kb.NewStationCatalog()
	if err := cat.LoadFiles(stationsFixture, eccPath); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	return cat
}

func dialService(t *testing.T, svc *Service) *ReductionServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(nil),
		TracingUnaryServerInterceptor(),
	))
	RegisterReductionServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewReductionServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestReduceStationsAtReferenceEpoch(t *testing.T) {
	client := dialService(t, NewService(loadedCatalog(t, eccXYZFixture)))

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "req-42")
	out, err := client.ReduceStations(ctx, mustStruct(t, map[string]any{
		"epoch":       "2010-01-01T00:00:00Z",
		"station_ids": []any{"78393402"},
	}))
	if err != nil {
		t.Fatalf("ReduceStations: %v", err)
	}
	positions := out.GetFields()["positions"].GetListValue().GetValues()
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	p := positions[0].GetStructValue().GetFields()
	if got := p["station_id"].GetStringValue(); got != "78393402" {
		t.Fatalf("station_id = %q, want 78393402", got)
	}
	wantX := 4194426.50 - 0.0405
	if got := p["x"].GetNumberValue(); math.Abs(got-wantX) > 1e-6 {
		t.Fatalf("x = %.6f, want %.6f", got, wantX)
	}
	if lat := p["latitude"].GetNumberValue(); lat < 47 || lat > 47.1 {
		t.Fatalf("latitude = %v, want Graz", lat)
	}
	if got := p["domes"].GetStringValue(); got != "11001S002" {
		t.Fatalf("domes = %q, want 11001S002", got)
	}
}

func TestReduceStationsAllAndPolicy(t *testing.T) {
	client := dialService(t, NewService(loadedCatalog(t, eccUNEFixture)))
	ctx := context.Background()

	_, err := client.ReduceStations(ctx, mustStruct(t, map[string]any{"epoch": "2019-06-01T00:00:00Z"}))
	if code := status.Code(err); code != codes.FailedPrecondition {
		t.Fatalf("strict without eccentricity code = %v, want FailedPrecondition", code)
	}

	out, err := client.ReduceStations(ctx, mustStruct(t, map[string]any{"epoch": "2019-06-01T00:00:00Z", "policy": "zero"}))
	if err != nil {
		t.Fatalf("ReduceStations zero policy: %v", err)
	}
	if n := len(out.GetFields()["positions"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("positions = %d, want 2", n)
	}
	if got := out.GetFields()["policy"].GetStringValue(); got != "zero" {
		t.Fatalf("policy = %q, want zero", got)
	}
}

func TestReduceStationsErrors(t *testing.T) {
	client := dialService(t, NewService(loadedCatalog(t, eccXYZFixture)))
	ctx := context.Background()

	tests := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{name: "missing epoch", req: map[string]any{}, code: codes.InvalidArgument},
		{name: "bad epoch", req: map[string]any{"epoch": "19:152:00000"}, code: codes.InvalidArgument},
		{name: "bad policy", req: map[string]any{"epoch": "2019-06-01T00:00:00Z", "policy": "lenient"}, code: codes.InvalidArgument},
		{name: "ids not a list", req: map[string]any{"epoch": "2019-06-01T00:00:00Z", "station_ids": "78393402"}, code: codes.InvalidArgument},
		{name: "unknown station", req: map[string]any{"epoch": "2019-06-01T00:00:00Z", "station_ids": []any{"12345678"}}, code: codes.NotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.ReduceStations(ctx, mustStruct(t, tc.req))
			if code := status.Code(err); code != tc.code {
				t.Fatalf("code = %v, want %v (err %v)", code, tc.code, err)
			}
		})
	}
}

func TestReduceStationsBeforeLoad(t *testing.T) {
	client := dialService(t, NewService(kb.NewStationCatalog()))
	_, err := client.ReduceStations(context.Background(), mustStruct(t, map[string]any{"epoch": "2019-06-01T00:00:00Z"}))
	if code := status.Code(err); code != codes.FailedPrecondition {
		t.Fatalf("code = %v, want FailedPrecondition", code)
	}
}

func TestExtractRanges(t *testing.T) {
	data, err := os.ReadFile(crdFixture)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	client := dialService(t, NewService(kb.NewStationCatalog()))

	out, err := client.ExtractRanges(context.Background(), mustStruct(t, map[string]any{"crd": string(data)}))
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	ms := out.GetFields()["measurements"].GetListValue().GetValues()
	if len(ms) != 4 {
		t.Fatalf("measurements = %d, want 4", len(ms))
	}
	first := ms[0].GetStructValue().GetFields()
	if got := first["station_id"].GetStringValue(); got != "78393402" {
		t.Fatalf("station_id = %q, want 78393402", got)
	}
	if got := first["wavelength_um"].GetNumberValue(); got != 0.532 {
		t.Fatalf("wavelength_um = %v, want 0.532", got)
	}
	warns := out.GetFields()["warnings"].GetListValue().GetValues()
	if len(warns) != 1 || warns[0].GetStructValue().GetFields()["line"].GetNumberValue() != 17 {
		t.Fatalf("warnings = %v, want one at line 17", warns)
	}
}

func TestExtractRangesLegacy(t *testing.T) {
	client := dialService(t, NewService(kb.NewStationCatalog()))
	text := "H4  1 2019 06 01 23 50 00\n11 86000.5 0.047 std1 2\n11 86010.5 0.047 std1 2\nH8\n"

	out, err := client.ExtractRanges(context.Background(), mustStruct(t, map[string]any{
		"crd":        text,
		"legacy":     true,
		"station_id": "78393402",
	}))
	if err != nil {
		t.Fatalf("ExtractRanges legacy: %v", err)
	}
	if n := len(out.GetFields()["measurements"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("measurements = %d, want 2", n)
	}
}

func TestExtractRangesRejectsBadInput(t *testing.T) {
	client := dialService(t, NewService(kb.NewStationCatalog()))
	ctx := context.Background()

	if _, err := client.ExtractRanges(ctx, mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty request code = %v, want InvalidArgument", status.Code(err))
	}
	unterminated := "H1 CRD  2 2019 06 02 10\nH4  1 2019 06 01 23 50 00\n11 86000.5 0.047 std1 2\n"
	if _, err := client.ExtractRanges(ctx, mustStruct(t, map[string]any{"crd": unterminated})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unterminated block code = %v, want InvalidArgument", status.Code(err))
	}
}
