package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/cuenv/cuenv/internal/errs"
)

// jsonCodec is a hand-written gRPC codec substituting for protoc-generated
// message types: this environment has no protoc available to generate the
// usual *.pb.go stubs, so CaptureReady/Ping are defined as plain JSON
// payloads and carried over the same google.golang.org/grpc transport
// (Unix-domain socket, unary RPC) the teacher's internal/daemon/server.go
// uses for turbod's NotifyOutputsWritten/Hello/Status RPCs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "cuenv.supervisor.Supervisor"

// CaptureReadyRequest is CaptureReady's request payload.
type CaptureReadyRequest struct {
	InputHash string `json:"input_hash"`
}

// CaptureReadyResponse is CaptureReady's (empty) response payload.
type CaptureReadyResponse struct{}

// PingRequest is Ping's request payload.
type PingRequest struct{}

// PingResponse is Ping's response payload.
type PingResponse struct{}

// Handler is implemented by the main process to receive supervisor
// push notifications.
type Handler interface {
	CaptureReady(ctx context.Context, req *CaptureReadyRequest) (*CaptureReadyResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

func captureReadyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CaptureReadyRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(Handler).CaptureReady(ctx, req)
}

func pingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(Handler).Ping(ctx, req)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// _ServiceDesc for the Supervisor service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CaptureReady", Handler: captureReadyHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "supervisor.proto",
}

// RegisterHandler attaches handler's RPCs to grpcServer.
func RegisterHandler(grpcServer grpc.ServiceRegistrar, handler Handler) {
	grpcServer.RegisterService(&serviceDesc, handler)
}

// SocketPath returns the supervisor's control-socket path, hashed from
// the module root the same way internal/daemon/daemon.go's getRepoHash
// derives turbod's socket path (a short hex digest keeps the path under
// the Unix-domain-socket length limit).
func SocketPath(app string, moduleRoot string) string {
	sum := sha256.Sum256([]byte(moduleRoot))
	hash := hex.EncodeToString(sum[:])[:16]
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.sock", app, hash))
}

// loggingInterceptor logs each unary RPC's method and latency, the same
// per-call detail internal/logstreamer gave turbod's own RPC traffic in
// the teacher.
func loggingInterceptor(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("supervisor: rpc", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return resp, err
	}
}

// Serve starts a unary gRPC server over a Unix-domain socket at sockPath,
// registers handler, and blocks until ctx is cancelled.
func Serve(ctx context.Context, sockPath string, handler Handler, logger hclog.Logger) error {
	_ = os.Remove(sockPath)
	lis, err := net.Listen("unix", sockPath)
	if err != nil {
		return errs.IOf("listen on supervisor socket", sockPath, err)
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(loggingInterceptor(logger))))
	RegisterHandler(s, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// client wraps a gRPC connection to the main process's supervisor socket.
type client struct {
	conn *grpc.ClientConn
}

// Dial connects to the main process's supervisor socket.
func Dial(sockPath string) (*client, error) {
	conn, err := grpc.Dial("unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, errs.IOf("dial supervisor socket", sockPath, err)
	}
	return &client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *client) Close() error { return c.conn.Close() }

// NotifyCaptureReady implements Notifier.
func (c *client) NotifyCaptureReady(ctx context.Context, inputHash string) error {
	resp := new(CaptureReadyResponse)
	return c.conn.Invoke(ctx, fmt.Sprintf("/%s/CaptureReady", serviceName), &CaptureReadyRequest{InputHash: inputHash}, resp)
}

// Ping checks whether the main process's supervisor socket is alive.
func (c *client) Ping(ctx context.Context) error {
	resp := new(PingResponse)
	return c.conn.Invoke(ctx, fmt.Sprintf("/%s/Ping", serviceName), &PingRequest{}, resp)
}
