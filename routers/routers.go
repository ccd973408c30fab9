package routers

import (
	"crate-ledger/handlers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up all the HTTP routes for the crate ledger
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Mints a crate record with no parents
	r.HandleFunc("/crates", h.CreateCrate).Methods("POST")

	// Mints the successor of a crate, weight unchanged
	r.HandleFunc("/crates/transfer", h.TransferOwnership).Methods("POST")

	// Mints one crate out of 2..10 parents
	r.HandleFunc("/crates/mix", h.MixCrates).Methods("POST")

	// Mints one record of a split of a parent crate
	r.HandleFunc("/crates/split", h.SplitCrate).Methods("POST")

	// Link repair: replace a parent's children, add a parent to a child
	r.HandleFunc("/crates/{key}/children", h.UpdateParentChildren).Methods("PUT")
	r.HandleFunc("/crates/{key}/parents", h.UpdateChildParent).Methods("POST")

	r.HandleFunc("/crates/{key}", h.GetCrate).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
