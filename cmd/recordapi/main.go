// Command recordapi serves the configured record store over the record HTTP API
// so a datamanager instance can use it through the http store driver.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datamanager/internal/adapters/recordapi"
	"datamanager/internal/catalog"
	"datamanager/internal/core"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("recordapi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", ":8000", "listen address")
	idField := fs.String("id-field", "id", "document field carrying the record id in listings")
	anyCollection := fs.Bool("any-collection", false, "serve collections missing from the catalog")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := slog.New(slog.NewJSONHandler(stdout, nil))

	store, err := core.OpenRecordStore()
	if err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "recordapi: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	if c, ok := store.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	opts := []recordapi.Option{recordapi.WithIDField(*idField), recordapi.WithLogger(logger)}
	if !*anyCollection {
		opts = append(opts, recordapi.WithCollections(catalog.Default().Has))
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, *addr, recordapi.NewServer(store, opts...), logger); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "recordapi: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
