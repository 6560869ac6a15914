package triage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/aviator"
)

// GRPCTransport opens bidirectional ProcessStream sessions with the triage
// service.
type GRPCTransport struct {
	address   string
	resolve   func(ctx context.Context) (string, error)
	tlsConf   *tls.Config
	keepalive time.Duration
	dialer    func(context.Context, string) (net.Conn, error)
	logger    *slog.Logger
}

// GRPCOption configures a GRPCTransport.
type GRPCOption func(*GRPCTransport)

// WithTLS enables TLS with the given configuration. Without it the
// connection is insecure.
func WithTLS(conf *tls.Config) GRPCOption {
	return func(t *GRPCTransport) {
		t.tlsConf = conf
	}
}

// WithKeepalive sets the client keepalive ping interval.
func WithKeepalive(d time.Duration) GRPCOption {
	return func(t *GRPCTransport) {
		t.keepalive = d
	}
}

// WithResolver resolves the address when a session is opened, overriding
// the static address.
func WithResolver(resolve func(ctx context.Context) (string, error)) GRPCOption {
	return func(t *GRPCTransport) {
		t.resolve = resolve
	}
}

// WithContextDialer replaces the network dialer (used with in-memory listeners).
func WithContextDialer(dialer func(context.Context, string) (net.Conn, error)) GRPCOption {
	return func(t *GRPCTransport) {
		t.dialer = dialer
	}
}

// WithGRPCLogger sets the logger.
func WithGRPCLogger(logger *slog.Logger) GRPCOption {
	return func(t *GRPCTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewGRPCTransport creates a transport for address.
func NewGRPCTransport(address string, opts ...GRPCOption) *GRPCTransport {
	t := &GRPCTransport{
		address:   address,
		keepalive: 30 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open implements Transport.
func (t *GRPCTransport) Open(ctx context.Context) (Session, error) {
	address := t.address
	if t.resolve != nil {
		resolved, err := t.resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve triage service: %w", err)
		}
		address = resolved
	}
	if address == "" {
		return nil, fmt.Errorf("triage service address is empty")
	}

	var dialOpts []grpc.DialOption

	if t.tlsConf != nil {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(t.tlsConf)))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                t.keepalive,
		Timeout:             10 * time.Second,
		PermitWithoutStream: true,
	}))

	if t.dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(t.dialer))
	}

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to triage service: %w", err)
	}

	t.logger.Debug("triage connection created", "address", address)
	return &grpcSession{conn: conn, logger: t.logger}, nil
}

type grpcSession struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
}

func (s *grpcSession) Close() error {
	return s.conn.Close()
}

// Exchange sends the init message, waits for its acknowledgement, then
// streams one audit message per candidate while receiving verdicts.
func (s *grpcSession) Exchange(ctx context.Context, req BatchRequest, sink func(Verdict)) error {
	const op = "grpcSession.Exchange"

	if req.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+req.Token)
	}

	g, gctx := errgroup.WithContext(ctx)

	stream, err := s.conn.NewStream(gctx, &processStreamDesc, processStreamMethod)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	initMsg, err := encodeInit(&req, req.StreamID)
	if err != nil {
		return fmt.Errorf("failed to encode init request: %w", err)
	}
	if err := stream.SendMsg(initMsg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to send init request: %w", err)
	}

	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		return err
	}
	if st := stringField(ack, "status"); st != StatusSuccess {
		return aviator.NewSimpleError(op, fmt.Errorf("%w: stream initialization failed: %s",
			aviator.ErrRemoteRejected, stringField(ack, "status_message"))).
			WithContext(map[string]any{"status": st})
	}
	s.logger.Info("triage stream initialized", "stream_id", req.StreamID)

	g.Go(func() error {
		for i := range req.Candidates {
			msg, err := encodeAudit(req.StreamID, req.RequestIDs[i], &req.Candidates[i])
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				if errors.Is(err, io.EOF) {
					// the server ended the stream; RecvMsg reports why
					return nil
				}
				return fmt.Errorf("failed to send request %s: %w", req.RequestIDs[i], err)
			}
		}
		return stream.CloseSend()
	})

	g.Go(func() error {
		return s.receive(stream, &req, sink)
	})

	return g.Wait()
}

func (s *grpcSession) receive(stream grpc.ClientStream, req *BatchRequest, sink func(Verdict)) error {
	const op = "grpcSession.receive"

	pending := make(map[string]struct{}, req.Len())
	for _, id := range req.RequestIDs {
		pending[id] = struct{}{}
	}

	for len(pending) > 0 {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Warn("triage stream ended early", "unanswered", len(pending))
				return nil
			}
			return err
		}

		v := decodeResponse(msg)
		switch v.Status {
		case statusPong:
			continue
		case statusBackpressureWarning:
			s.logger.Warn("triage service reported backpressure", "message", v.StatusMessage)
			continue
		case statusBackpressureViolation:
			return aviator.NewTechnicalError(op, fmt.Errorf("stream terminated by server: %s", v.StatusMessage))
		case StatusInternalError:
			return aviator.NewTechnicalError(op, fmt.Errorf("internal server error: %s", v.StatusMessage))
		}

		delete(pending, v.RequestID)
		sink(v)
		s.logger.Debug("verdict received",
			"request_id", v.RequestID,
			"status", v.Status,
			"remaining", len(pending))
	}
	return nil
}
