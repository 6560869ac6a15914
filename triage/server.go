package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/aviator/finding"
)

const (
	serviceName         = "aviator.v1.AuditorService"
	processStreamMethod = "/" + serviceName + "/ProcessStream"
)

var processStreamDesc = grpc.StreamDesc{
	StreamName:    "ProcessStream",
	ServerStreams: true,
	ClientStreams: true,
}

// AuditorStream is the server side of a ProcessStream call.
type AuditorStream interface {
	Context() context.Context
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
}

// TriageServer is implemented by in-process triage services.
type TriageServer interface {
	ProcessStream(AuditorStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TriageServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    processStreamDesc.StreamName,
		Handler:       processStreamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "aviator/v1/auditor.proto",
}

// RegisterTriageServer registers srv on s.
func RegisterTriageServer(s grpc.ServiceRegistrar, srv TriageServer) {
	s.RegisterService(&serviceDesc, srv)
}

func processStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(TriageServer).ProcessStream(&auditorStream{stream})
}

type auditorStream struct {
	grpc.ServerStream
}

func (s *auditorStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func (s *auditorStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TriageFunc decides one candidate.
type TriageFunc func(ctx context.Context, c finding.Candidate) Verdict

// StubServer is a TriageServer that answers every audit message with the
// result of Triage. It backs tests and local runs without a real service.
type StubServer struct {
	// Triage decides each candidate. Required.
	Triage TriageFunc

	// Token, when set, must match the bearer token in the call metadata.
	Token string

	// RejectInit, when set, is returned as the init status message with a
	// non-success status.
	RejectInit string
}

// ProcessStream implements TriageServer.
func (s *StubServer) ProcessStream(stream AuditorStream) error {
	ctx := stream.Context()

	if s.Token != "" && bearer(ctx) != s.Token {
		return status.Error(codes.Unauthenticated, "invalid or missing token")
	}

	initMsg, err := stream.Recv()
	if err != nil {
		return err
	}
	if stringField(initMsg, "type") != msgInit {
		return status.Error(codes.InvalidArgument, "first message must be an init request")
	}
	streamID := stringField(initMsg, "stream_id")

	ack := map[string]any{
		"stream_id":  streamID,
		"request_id": stringField(initMsg, "request_id"),
		"status":     StatusSuccess,
	}
	if s.RejectInit != "" {
		ack["status"] = StatusFailed
		ack["status_message"] = s.RejectInit
	}
	ackMsg, err := structpb.NewStruct(ack)
	if err != nil {
		return err
	}
	if err := stream.Send(ackMsg); err != nil {
		return err
	}
	if s.RejectInit != "" {
		return nil
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if stringField(msg, "type") != msgAudit {
			return status.Error(codes.InvalidArgument, fmt.Sprintf("unexpected message type %q", stringField(msg, "type")))
		}

		c, err := decodeCandidate(msg)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}

		v := s.Triage(ctx, c)
		v.RequestID = stringField(msg, "request_id")
		if v.Status == "" {
			v.Status = StatusSuccess
		}
		resp, err := encodeResponse(streamID, &v)
		if err != nil {
			return err
		}
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimPrefix(values[0], "Bearer ")
}
