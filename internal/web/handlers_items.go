package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JonMunkholm/verifier/internal/verify"
	"github.com/go-chi/chi/v5"
)

// StreamKeepAlive is the interval of SSE comment pings.
var StreamKeepAlive = 25 * time.Second

type itemResponse struct {
	ID               string         `json:"id"`
	ItemCode         string         `json:"item_code"`
	Name             string         `json:"name"`
	Batch            string         `json:"batch"`
	MRP              string         `json:"mrp"`
	Pack             string         `json:"pack"`
	Expiry           string         `json:"expiry"`
	Quantity         int            `json:"quantity"`
	FreeQuantity     int            `json:"freequantity"`
	Status           verify.Status  `json:"status"`
	Outcome          string         `json:"outcome"`
	Reason           string         `json:"reason,omitempty"`
	ScannedQuantity  int            `json:"scanned_quantity"`
	Similarity       float64        `json:"similarity"`
	Message          string         `json:"message"`
	Mismatches       map[string]any `json:"mismatches,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	Origin           verify.Origin  `json:"origin"`
	QuantityExceeded bool           `json:"quantity_exceeded"`
}

type alertResponse struct {
	ItemCode     string    `json:"item_code"`
	Name         string    `json:"name"`
	Batch        string    `json:"batch"`
	Quantity     int       `json:"quantity"`
	FreeQuantity int       `json:"freequantity"`
	Allowed      int       `json:"allowed"`
	Scanned      int       `json:"scanned"`
	RaisedAt     time.Time `json:"raised_at"`
}

type viewResponse struct {
	Version      uint64           `json:"version"`
	Items        []itemResponse   `json:"items"`
	Sort         verify.SortState `json:"sort"`
	TotalScanned int              `json:"total_scanned"`
	Alert        *alertResponse   `json:"alert,omitempty"`
	Error        string           `json:"error,omitempty"`
}

type alertsResponse struct {
	Error    string         `json:"error,omitempty"`
	Quantity *alertResponse `json:"quantity,omitempty"`
}

type eventResponse struct {
	Touched []string       `json:"touched"`
	Created int            `json:"created"`
	Evicted []string       `json:"evicted,omitempty"`
	Alert   *alertResponse `json:"alert,omitempty"`
}

func toItem(it verify.TrackedItem, exceeded map[string]bool) itemResponse {
	return itemResponse{
		ID:               it.ID,
		ItemCode:         it.ItemCode(),
		Name:             it.Product.Name,
		Batch:            it.Product.Batch,
		MRP:              it.Product.MRP.String(),
		Pack:             it.Product.Pack,
		Expiry:           it.Product.Expiry,
		Quantity:         it.Quantity(),
		FreeQuantity:     it.FreeQuantity(),
		Status:           it.Status,
		Outcome:          it.Outcome(),
		Reason:           it.Reason,
		ScannedQuantity:  it.ScannedQuantity,
		Similarity:       it.Similarity,
		Message:          it.Message,
		Mismatches:       it.Mismatches,
		Timestamp:        it.Timestamp,
		Origin:           it.Origin,
		QuantityExceeded: exceeded[it.ItemCode()],
	}
}

func toAlert(a *verify.OverQuantityAlert) *alertResponse {
	if a == nil {
		return nil
	}
	return &alertResponse{
		ItemCode:     a.Product.ItemCode,
		Name:         a.Product.Name,
		Batch:        a.Product.Batch,
		Quantity:     a.Quantity,
		FreeQuantity: a.FreeQuantity,
		Allowed:      a.Allowed,
		Scanned:      a.Scanned,
		RaisedAt:     a.RaisedAt,
	}
}

func toView(snap verify.Snapshot) viewResponse {
	items := make([]itemResponse, len(snap.Items))
	total := 0
	for i, it := range snap.Items {
		items[i] = toItem(it, snap.Exceeded)
		if it.Origin == verify.OriginEvent {
			total += it.ScannedQuantity
		}
	}
	return viewResponse{
		Version:      snap.Version,
		Items:        items,
		Sort:         snap.Sort,
		TotalScanned: total,
		Alert:        toAlert(snap.Alert),
		Error:        snap.Error,
	}
}

// handleListItems returns the sorted live view.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toView(s.reconciler.Snapshot()))
}

// handleSortItems toggles the sort on a column.
func (s *Server) handleSortItems(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "missing sort key")
		return
	}
	writeJSON(w, http.StatusOK, s.reconciler.RequestSort(key))
}

// handleItemStream pushes a view snapshot on every reconciler change.
// The first event carries the current state.
func (s *Server) handleItemStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshots, cancel := s.reconciler.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(snap verify.Snapshot) bool {
		data, err := json.Marshal(toView(snap))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.reconciler.Snapshot()) {
		return
	}

	ping := time.NewTicker(StreamKeepAlive)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if !send(snap) {
				return
			}
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleInjectEvent applies a verification event posted over HTTP. The body
// has the same shape as a channel payload.
func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := s.reconciler.ApplyPayload(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Alert != nil {
		status = http.StatusConflict
	}
	writeJSON(w, status, eventResponse{
		Touched: nonNil(res.Touched),
		Created: res.Created,
		Evicted: res.Evicted,
		Alert:   toAlert(res.Alert),
	})
}

// handleGetAlerts returns the retained error and over-quantity alert.
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	resp := alertsResponse{Quantity: toAlert(s.reconciler.Alert())}
	if err := s.reconciler.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	s.reconciler.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.reconciler.AcknowledgeAlert()
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
