package main

import (
	"streamhub/work/handlers"
	"streamhub/work/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter mounts the search, proxy, channel admin and metrics endpoints.
func newRouter(a *app) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", handlers.HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// search; the streaming variant must not be gzipped or events would sit in the compressor
	router.Handle("/search", middleware.CORS(middleware.Gzip(handlers.HandleSearch(a.aggregator)))).Methods("GET", "OPTIONS")
	router.Handle("/search/stream", middleware.CORS(handlers.HandleSearchStream(a.aggregator))).Methods("GET", "OPTIONS")
	router.Handle("/search/cache", middleware.CORS(handlers.HandleClearSearchCache(a.aggregator))).Methods("DELETE", "OPTIONS")

	// proxy endpoints answer their own preflights
	prefix := a.proxy.Prefix
	router.HandleFunc(prefix+"/m3u8", a.proxy.ServeManifest).Methods("GET", "OPTIONS")
	router.HandleFunc(prefix+"/segment", a.proxy.ServeSegment).Methods("GET", "OPTIONS")
	router.HandleFunc(prefix+"/key", a.proxy.ServeKey).Methods("GET", "OPTIONS")

	setupAdminRoutes(router, &handlers.ChannelAPI{
		Cache:   a.channels,
		Refresh: a.refresher,
		Store:   a.db,
	})
	return router
}
