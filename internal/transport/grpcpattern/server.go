// Package grpcpattern is a demo gRPC adapter wrapping internal/router's
// dispatch loop, grounded on go-crablet's internal/grpc-app/server pattern
// (grpc.NewServer, net.Listen, reflection.Register). It carries its wire
// payloads as google.protobuf.Struct instead of generated message types:
// see pattern.proto for why.
package grpcpattern

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"cepcore/internal/router"
	"cepcore/pkg/cep"
)

const serviceName = "cepcore.grpcpattern.PatternService"

// Server implements the Submit/Subscribe RPCs described in pattern.proto.
type Server struct {
	r *router.Router

	mu          sync.Mutex
	subscribers []chan *structpb.Struct
}

// NewServer wraps r. Register the returned Server's Consume method as the
// Consumer passed to every PatternChainBuilder.Build call whose matches
// should be visible over gRPC.
func NewServer(r *router.Router) *Server {
	return &Server{r: r}
}

// Consume fans a completed StateEvent out to every connected Subscribe
// stream. Intended to be passed (wrapped in a closure) as a cep.Consumer.
func (s *Server) Consume(se *cep.StateEvent) {
	msg, err := toStruct(se)
	if err != nil {
		log.Printf("grpcpattern: dropping match, encode failed: %v", err)
		return
	}

	s.mu.Lock()
	subs := append([]chan *structpb.Struct(nil), s.subscribers...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			log.Printf("grpcpattern: subscriber channel full, dropping match %d", se.ID)
		}
	}
}

// Register attaches the hand-assembled ServiceDesc to grpcServer, the
// equivalent of what protoc-gen-go-grpc's RegisterPatternServiceServer
// would do.
func (s *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{StreamName: "Submit", Handler: s.submitHandler, ClientStreams: true},
			{StreamName: "Subscribe", Handler: s.subscribeHandler, ServerStreams: true},
		},
	}, s)
}

func (s *Server) submitHandler(_ any, stream grpc.ServerStream) error {
	for {
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			break
		}
		input, err := fromStruct(in)
		if err != nil {
			log.Printf("grpcpattern: bad Submit payload: %v", err)
			continue
		}
		s.r.In() <- input
	}
	ack, _ := structpb.NewStruct(map[string]any{"acknowledged": true})
	return stream.SendMsg(ack)
}

func (s *Server) subscribeHandler(_ any, stream grpc.ServerStream) error {
	var empty emptypb.Empty
	if err := stream.RecvMsg(&empty); err != nil {
		return err
	}

	ch := make(chan *structpb.Struct, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	defer s.unsubscribe(ch)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) unsubscribe(ch chan *structpb.Struct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subscribers {
		if c == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// Serve starts a grpc.Server with this Server and go-crablet's
// reflection.Register convention, blocking until the listener errors.
func Serve(addr string, s *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcpattern: listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	s.Register(grpcServer)
	reflection.Register(grpcServer)

	log.Printf("grpcpattern: serving on %s", addr)
	return grpcServer.Serve(lis)
}

func toStruct(se *cep.StateEvent) (*structpb.Struct, error) {
	positions := make([]any, len(se.StreamEvents))
	for i := range se.StreamEvents {
		var chain []any
		for _, sev := range se.GetEventChain(i) {
			chain = append(chain, map[string]any{
				"timestamp": sev.Timestamp,
				"data":      attrsToAny(sev.BeforeWindowData),
			})
		}
		positions[i] = chain
	}
	return structpb.NewStruct(map[string]any{
		"id":             se.ID,
		"timestamp":      se.Timestamp,
		"correlation_id": se.CorrelationID.String(),
		"positions":      positions,
	})
}

func attrsToAny(data []cep.AttributeValue) []any {
	out := make([]any, len(data))
	for i, v := range data {
		out[i] = v
	}
	return out
}

func fromStruct(s *structpb.Struct) (router.Input, error) {
	fields := s.AsMap()
	streamID, _ := fields["stream_id"].(string)
	if streamID == "" {
		return router.Input{}, fmt.Errorf("grpcpattern: missing stream_id")
	}
	var ts int64
	if f, ok := fields["timestamp"].(float64); ok {
		ts = int64(f)
	}
	var data []cep.AttributeValue
	if raw, ok := fields["data"].([]any); ok {
		for _, v := range raw {
			data = append(data, v)
		}
	}
	return router.Input{StreamID: streamID, Timestamp: ts, Data: data}, nil
}
