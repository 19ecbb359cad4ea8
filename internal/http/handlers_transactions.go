package http

import (
	"net/http"
	"strconv"

	"r2r/internal/core"
	"r2r/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var txs []core.Transaction
	switch v := r.URL.Query().Get("business"); v {
	case "":
		txs, err = s.deps.Transactions.List(r.Context(), userID)
	default:
		business, perr := strconv.ParseBool(v)
		if perr != nil || !business {
			writeError(w, r, badRequest("business filter only accepts true"))
			return
		}
		txs, err = s.deps.Transactions.Business(r.Context(), userID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type patchTransactionRequest struct {
	IsBusiness     *bool   `json:"isBusiness"`
	ToggleBusiness bool    `json:"toggleBusiness"`
	Category       *string `json:"category"`
}

// handlePatchTransaction applies the two mutations a transaction allows
// after ingest: the business flag and the category.
func (s *Server) handlePatchTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req patchTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IsBusiness == nil && !req.ToggleBusiness && req.Category == nil {
		writeError(w, r, badRequest("nothing to update: set isBusiness, toggleBusiness or category"))
		return
	}
	if req.IsBusiness != nil && req.ToggleBusiness {
		writeError(w, r, badRequest("isBusiness and toggleBusiness are exclusive"))
		return
	}

	var edits []services.TransactionEdit
	if req.Category != nil {
		edits = append(edits, services.CorrectCategory(*req.Category))
	}
	switch {
	case req.IsBusiness != nil:
		edits = append(edits, services.SetBusiness(*req.IsBusiness))
	case req.ToggleBusiness:
		edits = append(edits, services.ToggleBusiness())
	}
	tx, err := s.deps.Transactions.Edit(r.Context(), userID, r.PathValue("id"), edits...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
