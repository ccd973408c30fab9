package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"crate-ledger/logger"
	"crate-ledger/models"
	"crate-ledger/provenance"
)

// AuthorityHeader carries the caller identity. It is set by the gateway
// that authenticated the request.
const AuthorityHeader = "X-Crate-Authority"

// Handler contains the HTTP handlers for the crate ledger endpoints
type Handler struct {
	Ledger *provenance.Ledger
}

// NewHandler creates and returns a new Handler instance
func NewHandler(l *provenance.Ledger) *Handler {
	return &Handler{Ledger: l}
}

type childrenRequest struct {
	ChildKeys []string `json:"child_keys"`
}

type parentRequest struct {
	ParentKey string `json:"parent_key"`
}

// CreateCrate handles POST requests minting a crate with no lineage
func (h *Handler) CreateCrate(w http.ResponseWriter, r *http.Request) {
	var req provenance.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.CreateCrate(caller(r), req)
	writeMinted(w, "Crate created successfully", rec, err)
}

// TransferOwnership handles POST requests minting the successor of a crate
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req provenance.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.TransferOwnership(caller(r), req)
	writeMinted(w, "Crate transferred successfully", rec, err)
}

// MixCrates handles POST requests combining several crates into one
func (h *Handler) MixCrates(w http.ResponseWriter, r *http.Request) {
	var req provenance.MixRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.MixCrates(caller(r), req)
	writeMinted(w, "Crates mixed successfully", rec, err)
}

// SplitCrate handles POST requests minting one record of a split
func (h *Handler) SplitCrate(w http.ResponseWriter, r *http.Request) {
	var req provenance.SplitRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Ledger.SplitCrate(caller(r), req)
	writeMinted(w, "Crate split successfully", rec, err)
}

// UpdateParentChildren handles PUT requests replacing the children of a crate
func (h *Handler) UpdateParentChildren(w http.ResponseWriter, r *http.Request) {
	var req childrenRequest
	if !decode(w, r, &req) {
		return
	}
	key := mux.Vars(r)["key"]
	if err := h.Ledger.UpdateParentChildren(caller(r), key, req.ChildKeys); err != nil {
		writeError(w, err)
		return
	}
	h.writeCrate(w, key)
}

// UpdateChildParent handles POST requests adding a parent to a crate
func (h *Handler) UpdateChildParent(w http.ResponseWriter, r *http.Request) {
	var req parentRequest
	if !decode(w, r, &req) {
		return
	}
	key := mux.Vars(r)["key"]
	if err := h.Ledger.UpdateChildParent(caller(r), key, req.ParentKey); err != nil {
		writeError(w, err)
		return
	}
	h.writeCrate(w, key)
}

// GetCrate handles GET requests for a single crate record
func (h *Handler) GetCrate(w http.ResponseWriter, r *http.Request) {
	h.writeCrate(w, mux.Vars(r)["key"])
}

func (h *Handler) writeCrate(w http.ResponseWriter, key string) {
	rec, err := h.Ledger.GetCrate(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"crate": rec,
	})
}

func caller(r *http.Request) string {
	return r.Header.Get(AuthorityHeader)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		logger.Logger.Error("Failed to decode request", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
			"kind":  provenance.KindStructural.String(),
		})
		return false
	}
	return true
}

func writeMinted(w http.ResponseWriter, message string, rec *models.CrateRecord, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": message,
		"crate":   rec,
	})
}

func writeError(w http.ResponseWriter, err error) {
	kind := provenance.Classify(err)
	if kind == provenance.KindInternal {
		logger.Logger.Error("Ledger operation failed", zap.Error(err))
	}
	writeJSON(w, statusFor(kind), map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func statusFor(kind provenance.Kind) int {
	switch kind {
	case provenance.KindAuthorization:
		return http.StatusForbidden
	case provenance.KindStructural:
		return http.StatusBadRequest
	case provenance.KindArithmetic:
		return http.StatusUnprocessableEntity
	case provenance.KindNotFound:
		return http.StatusNotFound
	case provenance.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}
