package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(svc *Service, wsHandler http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations/", svc.handleConversation)
	mux.HandleFunc("/api/status/batch", svc.handleBatch)
	mux.HandleFunc("/api/tracking/stats", svc.handleTrackingStats)
	mux.HandleFunc("/api/tracking/cleanup", svc.handleTrackingCleanup)
	mux.HandleFunc("/healthz", svc.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if wsHandler != nil {
		mux.HandleFunc("/ws/conversations/", wsHandler)
	}
	return mux
}
