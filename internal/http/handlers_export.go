package http

import (
	"bytes"
	"net/http"
	"strconv"
)

const taxExportFilename = "r2r-tax-export.csv"

// handleTaxCSV buffers the export so a failed listing still yields a JSON error.
func (s *Server) handleTaxCSV(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	rows, err := s.deps.Export.BusinessCSV(r.Context(), userID, &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+taxExportFilename+`"`)
	w.Header().Set("X-Export-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleTaxSheets(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Export.ExportToSheet(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
