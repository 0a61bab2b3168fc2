package web

import (
	"net/http"

	"github.com/JonMunkholm/verifier/internal/store"
	"github.com/go-chi/chi/v5"
)

type addSupplierRequest struct {
	VCode string `json:"VCode" validate:"required,max=64"`
	Name  string `json:"Name" validate:"required,max=200"`
}

// handleSaveMapping persists the session mapping for the selected supplier.
func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.session.SaveMapping(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "supplier": s.session.Supplier()})
}

// handleGetMapping returns the stored mapping of a supplier in both naming
// schemes.
func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "supplier")

	m, err := s.directory.GetMapping(r.Context(), code)
	if err != nil {
		respondError(w, r, err)
		return
	}

	persisted := m.Persisted()
	persisted["SuppCode"] = code
	writeJSON(w, http.StatusOK, map[string]any{
		"supplier":  code,
		"mapping":   m,
		"persisted": persisted,
	})
}

// handleSearchSuppliers searches the supplier directory by name or code.
func (s *Server) handleSearchSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := s.directory.SearchSuppliers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

// handleAddSupplier creates or renames a directory entry.
func (s *Server) handleAddSupplier(w http.ResponseWriter, r *http.Request) {
	var req addSupplierRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sup := store.Supplier{VCode: req.VCode, Name: req.Name}
	if err := s.directory.AddSupplier(r.Context(), sup); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sup)
}
