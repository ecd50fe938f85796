package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names on the wire.
const (
	RecordServiceName = "cashtrack.v1.RecordService"
	SyncServiceName   = "cashtrack.v1.SyncService"
)

// RecordServer accepts new records.
type RecordServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
}

// SyncServer controls and reports on the drain coordinator.
type SyncServer interface {
	SyncNow(context.Context, *Empty) (*SyncNowResponse, error)
	GetSyncStatus(context.Context, *Empty) (*SyncStatus, error)
	ListPending(context.Context, *Empty) (*ListPendingResponse, error)
	ListDeadLetters(context.Context, *Empty) (*ListDeadLettersResponse, error)
	RequeueDeadLetter(context.Context, *RequeueRequest) (*RequeueResponse, error)
	PurgeDeadLetters(context.Context, *Empty) (*PurgeResponse, error)
	SetNetworkMode(context.Context, *SetNetworkModeRequest) (*SetNetworkModeResponse, error)
	WatchEvents(*WatchEventsRequest, EventSender) error
}

// EventSender streams events to one WatchEvents caller.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

// RegisterRecordServer registers srv on s.
func RegisterRecordServer(s grpc.ServiceRegistrar, srv RecordServer) {
	s.RegisterService(&recordServiceDesc, srv)
}

// RegisterSyncServer registers srv on s.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&syncServiceDesc, srv)
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary builds a MethodDesc that decodes a Struct into Req, calls the
// server and encodes Resp back, honouring any installed interceptor.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := FromStruct(req.(*structpb.Struct), &r); err != nil {
					return nil, grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", method, err)
				}
				resp, err := call(srv.(S), ctx, &r)
				if err != nil {
					return nil, err
				}
				return ToStruct(resp)
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(service, method),
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var recordServiceDesc = grpc.ServiceDesc{
	ServiceName: RecordServiceName,
	HandlerType: (*RecordServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(RecordServiceName, "Submit", RecordServer.Submit),
	},
}

var watchEventsStream = grpc.StreamDesc{
	StreamName:    "WatchEvents",
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		var req WatchEventsRequest
		if err := FromStruct(in, &req); err != nil {
			return grpcstatus.Errorf(codes.InvalidArgument, "WatchEvents: %v", err)
		}
		return srv.(SyncServer).WatchEvents(&req, &eventSender{stream})
	},
}

var syncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SyncServiceName, "SyncNow", SyncServer.SyncNow),
		unary(SyncServiceName, "GetSyncStatus", SyncServer.GetSyncStatus),
		unary(SyncServiceName, "ListPending", SyncServer.ListPending),
		unary(SyncServiceName, "ListDeadLetters", SyncServer.ListDeadLetters),
		unary(SyncServiceName, "RequeueDeadLetter", SyncServer.RequeueDeadLetter),
		unary(SyncServiceName, "PurgeDeadLetters", SyncServer.PurgeDeadLetters),
		unary(SyncServiceName, "SetNetworkMode", SyncServer.SetNetworkMode),
	},
	Streams: []grpc.StreamDesc{watchEventsStream},
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(evt *Event) error {
	msg, err := ToStruct(evt)
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(msg)
}
