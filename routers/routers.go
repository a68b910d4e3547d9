package routers

import (
	"dag-ledger/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the ledger
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Admits a packed signed block at a timeslot
	r.HandleFunc("/blocks", h.SubmitBlock).Methods("POST")

	// Signs a new block on top of every tip with the node's key
	r.HandleFunc("/blocks/produce", h.ProduceBlock).Methods("POST")

	r.HandleFunc("/tips", h.GetTips).Methods("GET")
	r.HandleFunc("/blocks/{hash}", h.GetBlock).Methods("GET")

	// Finality of one block
	r.HandleFunc("/blocks/{hash}/requirement", h.GetRequirement).Methods("GET")
	r.HandleFunc("/blocks/{hash}/zeta", h.GetZeta).Methods("GET")
	r.HandleFunc("/blocks/{hash}/confirmations", h.GetConfirmations).Methods("GET")

	// Every block the same validator signed within the epoch
	r.HandleFunc("/blocks/{hash}/conflicts", h.GetBlockConflicts).Methods("GET")

	// Empty run behind an anchor, ?backstep=n
	r.HandleFunc("/skips/{anchor}", h.GetSkip).Methods("GET")

	// Ordering: ?tips=a,b&conflicts=c
	r.HandleFunc("/merge", h.Merge).Methods("GET")
	r.HandleFunc("/order", h.GetOrder).Methods("GET")
	r.HandleFunc("/walk/{hash}", h.Walk).Methods("GET")

	// Equivocation between tips, ?tips=a,b
	r.HandleFunc("/conflicts", h.FindConflicts).Methods("GET")
	r.HandleFunc("/conflicts/longest-chain", h.GetLongestChain).Methods("GET")
}
