package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName and the single method named in §6.
const (
	ServiceName = "halo.StreamAudio"
	MethodName  = "StreamAudio"
	FullMethod  = "/" + ServiceName + "/" + MethodName
)

// Handler is the business logic invoked per incoming bidi stream. It
// reads exactly one Request then may Send any number of Outbound
// messages before returning; returning ends the RPC.
type Handler func(ctx context.Context, stream Stream) error

// Stream is the narrow, typed surface RequestOrchestrator needs from a
// gRPC bidi stream, independent of which side (client or server)
// established the connection.
type Stream interface {
	Context() context.Context
	RecvRequest() (*Request, error)
	Send(Outbound) error
}

// serverStream adapts grpc.ServerStream to Stream using the gob codec's
// Marshal/Unmarshal of the plain structs above.
type serverStream struct {
	grpc.ServerStream
}

func (s serverStream) RecvRequest() (*Request, error) {
	req := new(Request)
	if err := s.RecvMsg(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s serverStream) Send(msg Outbound) error {
	return s.SendMsg(&msg)
}

// ServiceDesc is registered against a *grpc.Server with RegisterService,
// the same mechanism protoc-gen-go-grpc generates; here it is written by
// hand because there is no generated stub.
func ServiceDesc(h Handler) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    MethodName,
				ServerStreams: true,
				ClientStreams: true,
				Handler: func(srv any, stream grpc.ServerStream) error {
					return h(stream.Context(), serverStream{stream})
				},
			},
		},
	}
}

// ClientStream is the client side of one StreamAudio call: send the
// single Request, half-close, then Recv the Outbound tagged union until
// io.EOF.
type ClientStream struct {
	grpc.ClientStream
}

// Recv reads the next Outbound tagged-union message, returning io.EOF
// when the server has sent end_message/error_message and closed.
func (c *ClientStream) Recv() (*Outbound, error) {
	out := new(Outbound)
	if err := c.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRequest sends the single inbound Request and half-closes the send
// direction, matching "Exactly one inbound message (request) followed
// by client half-close" in §6.
func (c *ClientStream) SendRequest(req *Request) error {
	if err := c.SendMsg(req); err != nil {
		return err
	}
	return c.CloseSend()
}

// OpenClientStream opens the bidi StreamAudio call against conn, using
// the halo-gob codec on this call only (CallContentSubtype), and
// returns a ClientStream ready for SendRequest followed by Recv.
func OpenClientStream(ctx context.Context, conn *grpc.ClientConn) (*ClientStream, error) {
	desc := &grpc.StreamDesc{
		StreamName:    MethodName,
		ServerStreams: true,
		ClientStreams: true,
	}
	cs, err := conn.NewStream(ctx, desc, FullMethod, grpc.CallContentSubtype(CodecName()))
	if err != nil {
		return nil, err
	}
	return &ClientStream{ClientStream: cs}, nil
}
