package store

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	verifyDeviceMethod = "/AVLService/VerifyDevice"
	insertAVLMethod    = "/AVLService/InsertAVL"
)

type AvlDataStoreClient interface {
	// VerifyDevice resolves an imei to the platform device id; codes.NotFound when unknown.
	VerifyDevice(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	SavePosition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type CustomAvlDataStoreClient struct {
	cc grpc.ClientConnInterface
}

func (c CustomAvlDataStoreClient) VerifyDevice(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	err := c.cc.Invoke(ctx, verifyDeviceMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c CustomAvlDataStoreClient) SavePosition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	err := c.cc.Invoke(ctx, insertAVLMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func NewCustomAvlDataStoreClient(cc grpc.ClientConnInterface) *CustomAvlDataStoreClient {
	return &CustomAvlDataStoreClient{cc: cc}
}
