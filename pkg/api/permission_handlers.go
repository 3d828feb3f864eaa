package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quillhub/quillhub/pkg/observability"
	"github.com/quillhub/quillhub/pkg/permcache"
	"github.com/quillhub/quillhub/pkg/permissions"
)

// PermissionHandlers provides the authorization API endpoints. Reads go
// through the decision cache; mutations go through the manager, which
// invalidates the cache before returning.
type PermissionHandlers struct {
	cache   *permcache.Service
	manager *permissions.Manager
	logger  *observability.Logger
}

// NewPermissionHandlers creates a new permission handlers instance
func NewPermissionHandlers(cache *permcache.Service, manager *permissions.Manager, logger *observability.Logger) *PermissionHandlers {
	return &PermissionHandlers{
		cache:   cache,
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers permission API routes
func (h *PermissionHandlers) RegisterRoutes(r *mux.Router) {
	// Decision reads
	r.HandleFunc("/api/v1/permissions/{userID}/pages/{pageID}", h.getPagePermission).Methods("GET")
	r.HandleFunc("/api/v1/permissions/{userID}/pages:batch", h.getPagePermissionsBatch).Methods("POST")
	r.HandleFunc("/api/v1/permissions/{userID}/drives/{driveID}", h.getDriveAccess).Methods("GET")

	// Mutations
	r.HandleFunc("/api/v1/pages/{pageID}/permissions", h.grantPagePermission).Methods("POST")
	r.HandleFunc("/api/v1/pages/{pageID}/permissions/{userID}", h.revokePagePermission).Methods("DELETE")
	r.HandleFunc("/api/v1/drives/{driveID}/members", h.addDriveMember).Methods("POST")
	r.HandleFunc("/api/v1/drives/{driveID}/members/{userID}", h.removeDriveMember).Methods("DELETE")
	r.HandleFunc("/api/v1/drives/{driveID}/owner", h.transferDriveOwnership).Methods("PUT")

	// Cache introspection
	r.HandleFunc("/api/v1/cache/stats", h.getCacheStats).Methods("GET")
}

type permissionResponse struct {
	UserID   string                          `json:"user_id"`
	PageID   string                          `json:"page_id"`
	Granted  bool                            `json:"granted"`
	Decision *permissions.PermissionDecision `json:"decision,omitempty"`
}

type driveAccessResponse struct {
	UserID  string `json:"user_id"`
	DriveID string `json:"drive_id"`
	Allowed bool   `json:"allowed"`
}

// getPagePermission handles GET /api/v1/permissions/{userID}/pages/{pageID}
// Query params:
//   - bypass_cache: read the store directly (still refills the cache)
func (h *PermissionHandlers) getPagePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	pageID := vars["pageID"]

	decision, err := h.cache.Resolve(r.Context(), userID, pageID, resolveOptions(r))
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, permissionResponse{
		UserID:   userID,
		PageID:   pageID,
		Granted:  decision != nil,
		Decision: decision,
	})
}

type batchRequest struct {
	PageIDs []string `json:"page_ids"`
}

type batchResponse struct {
	UserID    string                                     `json:"user_id"`
	Decisions map[string]*permissions.PermissionDecision `json:"decisions"`
}

// getPagePermissionsBatch handles POST /api/v1/permissions/{userID}/pages:batch
// Resolves every requested page with at most one store query.
func (h *PermissionHandlers) getPagePermissionsBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.PageIDs) == 0 {
		http.Error(w, "page_ids is required", http.StatusBadRequest)
		return
	}

	decisions, err := h.cache.ResolveBatch(r.Context(), userID, req.PageIDs, resolveOptions(r))
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		UserID:    userID,
		Decisions: decisions,
	})
}

// getDriveAccess handles GET /api/v1/permissions/{userID}/drives/{driveID}
func (h *PermissionHandlers) getDriveAccess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	driveID := vars["driveID"]

	allowed, err := h.cache.ResolveDriveAccess(r.Context(), userID, driveID, resolveOptions(r))
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, driveAccessResponse{
		UserID:  userID,
		DriveID: driveID,
		Allowed: allowed,
	})
}

type grantRequest struct {
	UserID    string                         `json:"user_id"`
	Flags     permissions.PermissionDecision `json:"flags"`
	GrantedBy string                         `json:"granted_by"`
}

// grantPagePermission handles POST /api/v1/pages/{pageID}/permissions
func (h *PermissionHandlers) grantPagePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pageID := vars["pageID"]

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.GrantPagePermission(r.Context(), pageID, req.UserID, req.Flags, req.GrantedBy); err != nil {
		h.writeMutationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// revokePagePermission handles DELETE /api/v1/pages/{pageID}/permissions/{userID}
func (h *PermissionHandlers) revokePagePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.manager.RevokePagePermission(r.Context(), vars["pageID"], vars["userID"]); err != nil {
		h.writeMutationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type memberRequest struct {
	UserID  string `json:"user_id"`
	AddedBy string `json:"added_by"`
}

// addDriveMember handles POST /api/v1/drives/{driveID}/members
func (h *PermissionHandlers) addDriveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.AddDriveMember(r.Context(), vars["driveID"], req.UserID, req.AddedBy); err != nil {
		h.writeMutationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeDriveMember handles DELETE /api/v1/drives/{driveID}/members/{userID}
func (h *PermissionHandlers) removeDriveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.manager.RemoveDriveMember(r.Context(), vars["driveID"], vars["userID"]); err != nil {
		h.writeMutationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ownerRequest struct {
	OwnerID string `json:"owner_id"`
}

// transferDriveOwnership handles PUT /api/v1/drives/{driveID}/owner
func (h *PermissionHandlers) transferDriveOwnership(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req ownerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.TransferDriveOwnership(r.Context(), vars["driveID"], req.OwnerID); err != nil {
		h.writeMutationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getCacheStats handles GET /api/v1/cache/stats
func (h *PermissionHandlers) getCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// writeResolveError maps resolution errors onto status codes. A store
// outage is a refusal, never a default allow.
func (h *PermissionHandlers) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, permcache.ErrInvalidKey), errors.Is(err, permissions.ErrInvalidID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, permcache.ErrStoreUnavailable):
		h.logger.WithError(err).Error("permission resolution refused, store unavailable")
		http.Error(w, "access temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.WithError(err).Error("permission resolution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *PermissionHandlers) writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, permissions.ErrInvalidID), errors.Is(err, permcache.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, permcache.ErrStoreUnavailable):
		h.logger.WithError(err).Error("mutation committed but invalidation incomplete")
		http.Error(w, "access temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.WithError(err).Error("permission mutation failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func resolveOptions(r *http.Request) *permcache.ResolveOptions {
	opts := &permcache.ResolveOptions{}
	if r.URL.Query().Get("bypass_cache") == "true" {
		opts.BypassCache = true
	}
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			opts.Timeout = d
		}
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
