package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/404minds/gt06-receiver/internal/directory"
	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
	"github.com/404minds/gt06-receiver/internal/store"
)

var logger = configuredLogger.Logger

type server struct {
	knownImei directory.Static
}

var defaultKnownImei = directory.Static{
	"357454075177072": "teltonika-1",
	"356307043721579": "wanway-1",
	"752533678900242": "wanway-7",
}

func (s *server) VerifyDevice(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	deviceID, err := s.knownImei.Lookup(ctx, req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "unknown imei %s", req.GetValue())
	}
	return wrapperspb.String(deviceID), nil
}

func (s *server) InsertAVL(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	logger.Sugar().Infoln(req.Fields["deviceId"].GetStringValue(), req.String())
	return &emptypb.Empty{}, nil
}

func main() {
	port := pflag.IntP("port", "p", 0, "port for this server")
	devicesFile := pflag.String("devices", "", "YAML file of known devices, a built-in list is used when empty")
	pflag.Parse()

	if *port == 0 {
		fmt.Fprintln(os.Stderr, "Usage:")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	knownImei := defaultKnownImei
	if *devicesFile != "" {
		loaded, err := directory.LoadStatic(*devicesFile)
		if err != nil {
			logger.Sugar().Fatalf("failed to load devices: %v", err)
		}
		knownImei = loaded
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	if err != nil {
		logger.Sugar().Fatalf("failed to listen: %v", err)
	}

	logger.Sugar().Infoln("Listening on port ", *port)
	s := grpc.NewServer()
	store.RegisterAvlDataStoreServer(s, &server{knownImei: knownImei})
	if err := s.Serve(lis); err != nil {
		logger.Sugar().Fatalf("failed to serve: %v", err)
	}
}
