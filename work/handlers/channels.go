package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"streamhub/work/channels"
	"streamhub/work/client"
	"streamhub/work/logger"
	"streamhub/work/types"
	"streamhub/work/watcher"

	"github.com/gorilla/mux"
)

// maxAdminBody bounds JSON bodies of the admin endpoints.
const maxAdminBody = 8 << 20

// LiveSources is the store view used by the channel admin endpoints.
type LiveSources interface {
	ListLiveSources(ctx context.Context) ([]types.LiveSource, error)
	DeleteLiveSource(ctx context.Context, key string) error
	SetAutoRefresh(ctx context.Context, enabled bool) error
}

// ChannelAPI groups the live-channel admin endpoints.
type ChannelAPI struct {
	Cache   *channels.Cache
	Refresh *watcher.RefreshManager
	Store   LiveSources
}

// channelStatus maps channel cache and upstream errors to an HTTP status and code.
func channelStatus(err error) (int, string) {
	switch {
	case errors.Is(err, channels.ErrUnknownSource), errors.Is(err, channels.ErrUnknownChannel):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, channels.ErrSourceDisabled):
		return http.StatusConflict, "source_disabled"
	case client.IsTimeout(err):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, client.ErrUpstreamStatus),
		errors.Is(err, client.ErrSourceUnreachable),
		errors.Is(err, client.ErrSourceMalformedResponse):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxAdminBody)).Decode(v)
}

// ListSources serves GET /live-sources.
func (api *ChannelAPI) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := api.Store.ListLiveSources(r.Context())
	if err != nil {
		logger.Error("{handlers/channels - ListSources} %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if sources == nil {
		sources = []types.LiveSource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// DeleteSource serves DELETE /live-sources/{source}. The stored channels and the cached
// list go with it; a source still named in the config file returns on the next start.
func (api *ChannelAPI) DeleteSource(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["source"]
	if err := api.Store.DeleteLiveSource(r.Context(), key); err != nil {
		logger.Error("{handlers/channels - DeleteSource} %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	api.Cache.Invalidate(key)
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAll serves POST /live-sources/refresh.
func (api *ChannelAPI) RefreshAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"results": api.Refresh.RefreshAll(r.Context())})
}

// Get serves GET /channels/{source} from the cache only; it never fetches.
func (api *ChannelAPI) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["source"]
	list, ok := api.Cache.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "not_cached", "no channel list cached for "+key)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// RefreshOne serves POST /channels/{source}/refresh.
func (api *ChannelAPI) RefreshOne(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["source"]
	count, err := api.Cache.Refresh(r.Context(), key)
	if err != nil {
		status, code := channelStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": key, "count": count})
}

// Invalidate serves DELETE /channels/{source}.
func (api *ChannelAPI) Invalidate(w http.ResponseWriter, r *http.Request) {
	api.Cache.Invalidate(mux.Vars(r)["source"])
	w.WriteHeader(http.StatusNoContent)
}

// Replace serves PUT /channels/{source} with an edited list.
func (api *ChannelAPI) Replace(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["source"]

	var body struct {
		Channels []types.Channel `json:"channels"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	if err := api.Cache.Put(r.Context(), key, body.Channels); err != nil {
		status, code := channelStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("{handlers/channels - Replace} %v", err)
		}
		writeError(w, status, code, err.Error())
		return
	}
	list, _ := api.Cache.Get(key)
	writeJSON(w, http.StatusOK, list)
}

// SetDisabled serves PUT /channels/{source}/{channel}/disabled.
func (api *ChannelAPI) SetDisabled(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body struct {
		Disabled *bool `json:"disabled"`
	}
	if err := decodeBody(r, &body); err != nil || body.Disabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"disabled": true|false}`)
		return
	}

	if err := api.Cache.SetChannelDisabled(r.Context(), vars["source"], vars["channel"], *body.Disabled); err != nil {
		status, code := channelStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": vars["channel"], "disabled": *body.Disabled})
}

// Precheck serves GET /channels/{source}/{channel}/precheck.
func (api *ChannelAPI) Precheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := api.Cache.Precheck(r.Context(), vars["source"], vars["channel"])
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		status, code := channelStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAutoRefresh serves GET /settings/auto-refresh with the effective value.
func (api *ChannelAPI) GetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": api.Refresh.AutoRefreshEnabled(r.Context())})
}

// SetAutoRefreshOverride serves PUT /settings/auto-refresh/override. The override wins
// over the stored setting until the process exits; {"enabled": null} clears it.
func (api *ChannelAPI) SetAutoRefreshOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"enabled": true|false|null}`)
		return
	}
	api.Refresh.SetOverride(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": api.Refresh.AutoRefreshEnabled(r.Context())})
}

// SetAutoRefresh serves PUT /settings/auto-refresh and stores the preference.
func (api *ChannelAPI) SetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"enabled": true|false}`)
		return
	}
	if err := api.Store.SetAutoRefresh(r.Context(), *body.Enabled); err != nil {
		logger.Error("{handlers/channels - SetAutoRefresh} %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": api.Refresh.AutoRefreshEnabled(r.Context())})
}
