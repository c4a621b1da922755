package server

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/match"
)

func TestEncodeErrorHidesInternalFailures(t *testing.T) {
	view := encodeError(apperrors.Wrap(apperrors.CodeInternalProcessingFailure, "board write failed", errors.New("boom")))
	assert.Equal(t, "INVALID_ACTION", view.Code)
	assert.Equal(t, "invalid action", view.Message)

	view = encodeError(errors.New("plain"))
	assert.Equal(t, "INVALID_ACTION", view.Code)

	view = encodeError(apperrors.New(apperrors.CodeIllegalSelection, "not your turn"))
	assert.Equal(t, "ILLEGAL_SELECTION", view.Code)
	assert.Equal(t, codes.InvalidArgument.String(), view.GRPCCode)
}

func TestEncodeBoardKeepsOnlyChangedCells(t *testing.T) {
	cells := encodeBoard(board.New())
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.True(t, c.Master)
		assert.NotEmpty(t, c.Owner)
	}

	b := board.Empty()
	pos := board.Coord{Row: 4, Col: 4}
	require.NoError(t, b.Claim(pos, board.PlayerOne, board.CoreSpawned))
	require.NoError(t, b.SetModifier(pos, board.ModShielded))
	cells = encodeBoard(b)
	require.Len(t, cells, 1)
	assert.Equal(t, CellView{Row: 4, Col: 4, Owner: "P1", Core: "SPAWNED", Modifiers: "SHIELDED"}, cells[0])
}

func TestHubIgnoresUnknownUsers(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	assert.NotPanics(t, func() {
		h.Notify("nobody", match.Notification{Kind: match.KindState})
	})
	assert.False(t, h.Connected("nobody"))
}

func TestHealthService(t *testing.T) {
	srv, hs := NewGRPCServer(zaptest.NewLogger(t))
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: MatchService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	hs.SetServingStatus(MatchService, healthpb.HealthCheckResponse_SERVING)
	resp, err = client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: MatchService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRecoveryInterceptor(t *testing.T) {
	intercept := RecoveryInterceptor(zaptest.NewLogger(t))
	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) {
			panic("boom")
		})
	assert.Equal(t, codes.Internal, status.Code(err))
}
