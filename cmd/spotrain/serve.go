package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/server"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	grpcAddr  string
	httpAddr  string
	logLevel  string
	logFormat string
}

func newServeCmd() *cobra.Command {
	o := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the experiment daemon with HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewWithFormat(o.logLevel, o.logFormat, cmd.ErrOrStderr())
			logger.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			grpcLis, err := net.Listen("tcp", o.grpcAddr)
			if err != nil {
				return err
			}
			httpLis, err := net.Listen("tcp", o.httpAddr)
			if err != nil {
				grpcLis.Close()
				return err
			}
			return serve(ctx, log, grpcLis, httpLis)
		},
	}

	cmd.Flags().StringVar(&o.grpcAddr, "grpc-addr", ":50051", "gRPC listen address")
	cmd.Flags().StringVar(&o.httpAddr, "http-addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&o.logFormat, "log-format", "text", "log format (json, text)")
	return cmd
}

// serve runs both servers until ctx is done or one of them fails, then
// cancels active runs and shuts down.
func serve(ctx context.Context, log *slog.Logger, grpcLis, httpLis net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	executor := server.NewRunExecutor(server.NewRunStore(), metrics.NewRegistry(true))
	executor.SetLogger(log)

	grpcServer := grpc.NewServer()
	health := server.RegisterRunsServer(grpcServer, server.NewGRPCServer(executor))

	httpSrv := &http.Server{
		Handler:           server.NewHTTPServer(executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			log.Error("gRPC server error", "error", err)
			cancel(err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			cancel(err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown requested")
	health.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		log.Error("Runs did not stop in time", "error", err)
	}

	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
