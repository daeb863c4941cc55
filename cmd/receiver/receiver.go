package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/404minds/gt06-receiver/internal/config"
	"github.com/404minds/gt06-receiver/internal/handlers"
	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
	"github.com/404minds/gt06-receiver/internal/protocols/gt06"
)

var logger = configuredLogger.Logger

func startGrpcServer(port int, healthServer *health.Server) *grpc.Server {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Sugar().Fatalf("Failed to listen on port %d: %v", port, err)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		logger.Sugar().Infof("gRPC server listening on port %d", port)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Sugar().Errorf("Failed to serve gRPC on port %d: %v", port, err)
		}
	}()
	return grpcServer
}

func startLiveFeed(port int, feed *handlers.LiveFeed) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/positions", feed)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar().Infof("Live feed listening on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Errorf("Live feed stopped: %v", err)
		}
	}()
	return server
}

func loadConfig() config.Config {
	var configPath = pflag.StringP("config", "c", "", "Path to the YAML config file")
	var port = pflag.IntP("port", "p", 0, "Port to listen on for devices")
	var wsPort = pflag.Int("ws-port", 0, "Port for the live position feed, 0 disables it")
	var grpcPort = pflag.Int("grpc-port", 0, "Port for the gRPC health service, 0 disables it")
	var logLevel = pflag.String("log-level", "", "Log level, e.g. debug or info")
	var help = pflag.BoolP("help", "h", false, "Display help text")

	pflag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Sugar().Fatalf("Failed to load config: %v", err)
	}

	flags := pflag.CommandLine
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("ws-port") {
		cfg.WebSocketPort = *wsPort
	}
	if flags.Changed("grpc-port") {
		cfg.GrpcPort = *grpcPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		pflag.Usage()
		os.Exit(1)
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	if err := configuredLogger.SetLevel(cfg.LogLevel); err != nil {
		logger.Sugar().Fatalf("Invalid log level: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	defer cleanup.closeAll()

	devices, err := buildDirectory(cfg.Directory, &cleanup)
	if err != nil {
		logger.Sugar().Fatalf("Failed to set up device directory: %v", err)
	}
	dataStore, err := buildStore(cfg.Store, &cleanup)
	if err != nil {
		logger.Sugar().Fatalf("Failed to set up store: %v", err)
	}
	// stopped through its close channel after the listener, not by ctx
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		if err := dataStore.Process(context.Background()); err != nil {
			logger.Sugar().Errorf("Store stopped: %v", err)
		}
	}()

	var feed *handlers.LiveFeed
	if cfg.WebSocketPort != 0 {
		feed = handlers.NewLiveFeed()
		feedServer := startLiveFeed(cfg.WebSocketPort, feed)
		defer feedServer.Close()
	}

	healthServer := health.NewServer()
	if cfg.GrpcPort != 0 {
		grpcServer := startGrpcServer(cfg.GrpcPort, healthServer)
		defer grpcServer.Stop()
	}

	tcpHandler := handlers.NewTcpHandler(gt06.NewDecoder(devices, cfg.Decoder), dataStore, feed)

	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Sugar().Errorf("Error listening on port %d: %v", cfg.Port, err)
		return
	}
	stopListener := context.AfterFunc(ctx, func() { listener.Close() })
	defer stopListener()
	logger.Sugar().Infof("TCP server listening on port %d", cfg.Port)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Sugar().Errorf("Error accepting a new connection: %v", err)
			continue
		}
		logger.Sugar().Infof("New connection from %s", conn.RemoteAddr().String())
		go tcpHandler.HandleConnection(ctx, conn)
	}

	healthServer.Shutdown()
	logger.Info("shutting down")
	dataStore.GetCloseChan() <- true
	select {
	case <-storeDone:
	case <-time.After(5 * time.Second):
		logger.Warn("store did not stop in time")
	}
}
