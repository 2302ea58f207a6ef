package status

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestStatus_ReportsModes(t *testing.T) {
	srv, client := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mode, err := client.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.ModeIdle, mode)
	live, err := client.Live(ctx)
	require.NoError(t, err)
	assert.False(t, live)

	srv.ReportMode(controller.ModePaused)
	assert.Equal(t, controller.ModePaused, srv.Mode())
	mode, err = client.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.ModePaused, mode)
	live, err = client.Live(ctx)
	require.NoError(t, err)
	assert.True(t, live)

	srv.ReportMode(controller.ModeFinished)
	live, err = client.Live(ctx)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestModeService(t *testing.T) {
	assert.Equal(t, "freqtag.Controller/running", ModeService(controller.ModeRunning))
}
