package server

import (
	"context"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// HTTPServer serves health, metrics, and the snapshot view.
type HTTPServer struct {
	Server *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{Server: &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}}
}

func (s *HTTPServer) ListenAndServe() error {
	return s.Server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
