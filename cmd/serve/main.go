package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	gohttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tilezen/go-tilecover/http"
	"github.com/tilezen/go-tilecover/internal/config"
	"github.com/tilezen/go-tilecover/tilecover"
)

func loggingMiddleware(logger *slog.Logger) func(gohttp.Handler) gohttp.Handler {
	return func(next gohttp.Handler) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			start := time.Now()
			defer func() {
				logger.Info("Request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "user_agent", r.UserAgent(), "elapsed", time.Since(start))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func newRouter(reader tilecover.MbtilesReader, logger *slog.Logger) gohttp.Handler {
	router := gohttp.NewServeMux()
	router.Handle("/coverage/", http.CoverageHandler(reader, logger))
	router.HandleFunc("/", gohttp.NotFound)
	return loggingMiddleware(logger)(router)
}

func main() {
	mbtilesFile := flag.String("input", config.Getenv(config.Env("input"), ""), "The coverage mbtiles file to serve from.")
	addr := flag.String("listen", config.Getenv(config.Env("listen"), ":8080"), "The address and port to listen on")
	logLevel := flag.String("log-level", config.Getenv(config.Env("log-level"), "info"), "Log level: debug, info, warn or error.")
	flag.Parse()

	logger, err := config.NewLogger(os.Stderr, *logLevel)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	if *mbtilesFile == "" {
		log.Fatal("Need to provide --input parameter")
	}

	if _, err := os.Stat(*mbtilesFile); err != nil {
		log.Fatalf("Couldn't open %s: %v", *mbtilesFile, err)
	}

	reader, err := tilecover.NewMbtilesReader(*mbtilesFile)
	if err != nil {
		log.Fatalf("Couldn't create MbtilesReader, %v", err)
	}
	defer reader.Close()

	if metadata, err := reader.Metadata(); err == nil {
		minZoom, _ := metadata.MinZoom()
		maxZoom, _ := metadata.MaxZoom()
		logger.Info("Serving coverage", "path", *mbtilesFile, "name", metadata.Name(), "minzoom", minZoom, "maxzoom", maxZoom)
	}

	server := &gohttp.Server{
		Addr:         *addr,
		Handler:      newRouter(reader, logger),
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Listening", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
		log.Fatalf("Could not listen on %s: %v\n", *addr, err)
	}
}
