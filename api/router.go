// Copyright (c) Augur Authors.
// Licensed under the MIT License.

package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes 将全部端点挂载到一个 ServeMux 上。hub 为 nil 时不注册
// WebSocket 端点。
func Routes(handler *Handler, hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/research", handler.HandleStartRun)
	mux.HandleFunc("GET /api/research/{id}", handler.HandleGetRun)
	if hub != nil {
		mux.HandleFunc("GET /api/research/ws/{id}", hub.HandleProgress)
	}

	mux.HandleFunc("GET /healthz", handler.HandleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
