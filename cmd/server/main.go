package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/opticom/internal/chat"
)

const defaultPort = 8080

type options struct {
	port        int
	portInvalid bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("CHAT_LOG_LEVEL")),
	}))
	if opts.portInvalid {
		logger.Warn("invalid port, using default", "port", defaultPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("CHAT_METRICS_ADDR"); addr != "" {
		go serveMetrics(ctx, addr, logger)
	}

	cfg := chat.DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", opts.port)

	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	srv.Stop()
	srv.Wait()
}

// parseFlags accepts -p/--port and -h/--help. A port that is not a number
// in 1..65535 falls back to the default and is reported through portInvalid.
func parseFlags(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("opticom", flag.ContinueOnError)
	fs.SetOutput(out)

	// read as text so a malformed port falls back like an out-of-range one
	port := strconv.Itoa(defaultPort)
	fs.StringVar(&port, "p", port, "port to listen on")
	fs.StringVar(&port, "port", port, "port to listen on")
	fs.Usage = func() {
		fmt.Fprint(out, "Opticom Chat Server\n"+
			"Usage: opticom [OPTIONS]\n\n"+
			"Options:\n"+
			"  --help, -h         Show this help menu\n"+
			"  -p, --port <num>   Start server on specified port (default: 8080)\n")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || n < 1 || n > 65535 {
		return options{port: defaultPort, portInvalid: true}, nil
	}
	return options{port: n}, nil
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint started", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics endpoint failed", "error", err)
	}
}
