package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/craftlist/internal/api/middleware"
	"github.com/btouchard/craftlist/internal/auth"
	"github.com/btouchard/craftlist/internal/store"
)

const (
	maxBodySize     = 1 << 20
	defaultProtocol = 47
)

// --- Servers ---

func (h *handler) listServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.ListServers(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (h *handler) getServer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	srv, err := h.store.GetServer(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (h *handler) listUserServers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	servers, err := h.store.ListUserServers(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (h *handler) addServer(w http.ResponseWriter, r *http.Request) {
	var in store.ServerInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Address == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name and address are required")
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	srv, err := h.store.AddServer(r.Context(), id.UserID, in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// --- Players graph ---

func (h *handler) listPlayersGraph(w http.ResponseWriter, r *http.Request) {
	samples, err := h.store.ListPlayersGraph(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

type playersSampleRequest struct {
	PlayersOnline *int      `json:"players_online"`
	Date          time.Time `json:"date"`
}

func (h *handler) addPlayersSample(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req playersSampleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlayersOnline == nil || *req.PlayersOnline < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "players_online must be a non-negative number")
		return
	}

	sample, err := h.store.AddPlayersSample(r.Context(), id, *req.PlayersOnline, req.Date)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// --- Categories ---

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *handler) addCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeName(w, r, &req, &req.Name) {
		return
	}
	c, err := h.store.AddCategory(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeCreated(w, c.ID)
}

func (h *handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if !decodeName(w, r, &req, &req.Name) {
		return
	}
	c, err := h.store.UpdateCategory(r.Context(), id, req.Name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) removeCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveCategory(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

// --- Versions ---

type versionRequest struct {
	Name     string `json:"name"`
	Protocol *int   `json:"protocol"`
}

func (v versionRequest) protocol() int {
	if v.Protocol == nil {
		return defaultProtocol
	}
	return *v.Protocol
}

func (h *handler) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.store.ListVersions(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *handler) addVersion(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if !decodeName(w, r, &req, &req.Name) {
		return
	}
	v, err := h.store.AddVersion(r.Context(), req.Name, req.protocol())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeCreated(w, v.ID)
}

func (h *handler) updateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req versionRequest
	if !decodeName(w, r, &req, &req.Name) {
		return
	}
	v, err := h.store.UpdateVersion(r.Context(), id, req.Name, req.protocol())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) removeVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveVersion(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

// --- Helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// decodeName decodes the body into v and requires the non-blank name it points at.
func decodeName(w http.ResponseWriter, r *http.Request, v any, name *string) bool {
	if !decodeBody(w, r, v) {
		return false
	}
	*name = strings.TrimSpace(*name)
	if *name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return false
	}
	return true
}

func writeCreated(w http.ResponseWriter, id int64) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Success", "id": id})
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var se *store.Error
	if errors.As(err, &se) {
		middleware.WriteError(w, se.StatusCode(), err.Error())
		return
	}
	slog.ErrorContext(r.Context(), "store failure",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
}
