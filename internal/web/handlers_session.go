package web

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/verifier/internal/core"
)

type mappingRequest struct {
	Mapping map[string]string `json:"mapping" validate:"required,min=1,dive,keys,required,endkeys,max=200"`
}

type supplierRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// handleUpload parses a multipart CSV upload into a new session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20) // headroom for multipart framing

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, core.ErrFileTooLarge)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondErrorStatus(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	sum, err := s.session.LoadCSV(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

// handleGetSession returns the current session summary.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sum, err := s.session.Summary()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleDiscardSession drops the session and clears the live view.
func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	s.session.Discard()
	w.WriteHeader(http.StatusNoContent)
}

// handleSetMapping replaces the session's field mapping.
func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sum, err := s.session.SetMapping(core.FieldMapping(req.Mapping))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleApply seeds the reconciler from the mapped rows.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	sum, err := s.session.Apply(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleDownloadCSV streams the applied records as canonical CSV.
func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.session.DownloadCSV(&buf); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+core.DownloadFileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleSelectSupplier selects the supplier and loads its stored mapping.
func (s *Server) handleSelectSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sum, err := s.session.SelectSupplier(r.Context(), req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
