// Package status exposes the controller's mode over the standard gRPC health
// protocol so acquisition software can poll whether a run is live.
package status

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/controller"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
)

// #region services
// Service is SERVING while a run is running or paused.
const Service = "freqtag.Controller"

// ModeService names the per-mode service; exactly one of them is SERVING.
func ModeService(m controller.Mode) string {
	return Service + "/" + string(m)
}

// #endregion services

// #region server
// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *log.Logger

	mu   sync.Mutex
	mode controller.Mode
}

// NewServer registers the health service and reports the idle mode.
func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: logger.NewComponent("status"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.ReportMode(controller.ModeIdle)
	return s
}

// ReportMode publishes m. It has the signature of a controller mode listener.
func (s *Server) ReportMode(m controller.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if m == controller.ModeRunning || m == controller.ModePaused {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, overall)
	for _, mode := range controller.Modes() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if mode == m {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ModeService(mode), st)
	}
	s.logger.Debug("mode reported", "mode", m)
}

// Mode returns the last reported mode.
func (s *Server) Mode() controller.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("status server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve status: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains open streams.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// #endregion server

// #region client
// Client queries a status server.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to addr without transport security. Extra options are appended.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Live reports whether a run is running or paused.
func (c *Client) Live(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return false, fmt.Errorf("check %s: %w", Service, err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Mode asks each per-mode service in turn and returns the serving one.
func (c *Client) Mode(ctx context.Context) (controller.Mode, error) {
	for _, m := range controller.Modes() {
		resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ModeService(m)})
		if err != nil {
			return "", fmt.Errorf("check %s: %w", ModeService(m), err)
		}
		if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return m, nil
		}
	}
	return "", fmt.Errorf("no mode is serving")
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion client
