package web

import (
	"net/http"
	"strconv"

	"github.com/JonMunkholm/verifier/internal/channel"
)

// handleExportReport renders the report of verified and failed items and
// sends it back as a file download.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	dl, err := s.session.Export(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+dl.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Header().Set("X-Export-ID", dl.ID)
	w.Header().Set("X-Report-Records", strconv.Itoa(dl.Records))
	_, _ = w.Write(dl.Data)
}

type channelResponse struct {
	Enabled bool `json:"enabled"`
	channel.State
}

// handleChannelStatus reports the live channel connection state.
func (s *Server) handleChannelStatus(w http.ResponseWriter, r *http.Request) {
	if s.channel == nil {
		writeJSON(w, http.StatusOK, channelResponse{State: channel.State{Status: channel.StatusDisconnected}})
		return
	}
	writeJSON(w, http.StatusOK, channelResponse{Enabled: true, State: s.channel.State()})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
