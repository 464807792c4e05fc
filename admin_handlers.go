package main

import (
	"net/http"

	"streamhub/work/handlers"
	"streamhub/work/middleware"

	"github.com/gorilla/mux"
)

// setupAdminRoutes registers the live-source and channel management endpoints. Read
// endpoints are gzipped, and every route answers CORS preflights.
func setupAdminRoutes(router *mux.Router, api *handlers.ChannelAPI) {
	get := func(h http.HandlerFunc) http.Handler { return middleware.CORS(middleware.Gzip(h)) }
	write := func(h http.HandlerFunc) http.Handler { return middleware.CORS(h) }

	router.Handle("/live-sources", get(api.ListSources)).Methods("GET", "OPTIONS")
	router.Handle("/live-sources/refresh", write(api.RefreshAll)).Methods("POST", "OPTIONS")
	router.Handle("/live-sources/{source}", write(api.DeleteSource)).Methods("DELETE", "OPTIONS")

	router.Handle("/channels/{source}", get(api.Get)).Methods("GET", "OPTIONS")
	router.Handle("/channels/{source}", write(api.Replace)).Methods("PUT")
	router.Handle("/channels/{source}", write(api.Invalidate)).Methods("DELETE")
	router.Handle("/channels/{source}/refresh", write(api.RefreshOne)).Methods("POST", "OPTIONS")
	router.Handle("/channels/{source}/{channel}/disabled", write(api.SetDisabled)).Methods("PUT", "OPTIONS")
	router.Handle("/channels/{source}/{channel}/precheck", get(api.Precheck)).Methods("GET", "OPTIONS")

	router.Handle("/settings/auto-refresh", get(api.GetAutoRefresh)).Methods("GET", "OPTIONS")
	router.Handle("/settings/auto-refresh", write(api.SetAutoRefresh)).Methods("PUT")
	router.Handle("/settings/auto-refresh/override", write(api.SetAutoRefreshOverride)).Methods("PUT", "OPTIONS")
}
