package api

import (
	"net/http"
	"time"

	"github.com/onemorebsmith/coinduel/src/engine"
	"go.uber.org/zap"
)

// NewServer creates the http.Server for the duel API. The write timeout covers
// agent calls, which are bounded by their own timeout.
func NewServer(addr string, eng *engine.Engine, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(eng, logger),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
