package store

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AvlDataStoreServer is the server side of AvlDataStoreClient.
type AvlDataStoreServer interface {
	VerifyDevice(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	InsertAVL(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterAvlDataStoreServer(s grpc.ServiceRegistrar, srv AvlDataStoreServer) {
	s.RegisterService(&AvlDataStoreServiceDesc, srv)
}

var AvlDataStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "AVLService",
	HandlerType: (*AvlDataStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "VerifyDevice",
			Handler:    verifyDeviceHandler,
		},
		{
			MethodName: "InsertAVL",
			Handler:    insertAVLHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "avl.proto",
}

func verifyDeviceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvlDataStoreServer).VerifyDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: verifyDeviceMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AvlDataStoreServer).VerifyDevice(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func insertAVLHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvlDataStoreServer).InsertAVL(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: insertAVLMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AvlDataStoreServer).InsertAVL(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
