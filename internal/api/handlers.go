package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/mapview"
	"github.com/sells-group/equity-map/internal/raster"
	"github.com/sells-group/equity-map/internal/state"
)

type ctxKey struct{}

// withSession resolves {id} to its dashboard.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.sessions.Get(chi.URLParam(r, "id"))
		if d == nil {
			writeMessage(w, http.StatusNotFound, "unknown or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, d)))
	})
}

func session(r *http.Request) *dashboard.Dashboard {
	return r.Context().Value(ctxKey{}).(*dashboard.Dashboard)
}

func kindParam(w http.ResponseWriter, r *http.Request) (state.Kind, bool) {
	k, err := state.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "unknown index type")
		return "", false
	}
	return k, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":  s.reg.Categories(),
		"race_groups": s.reg.RaceGroups(),
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	d := s.factory()
	if err := d.Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	id := s.sessions.Add(d)
	zap.L().Info("api: session created", zap.String("session", id))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": d.Status()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session(r).Status())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIndexFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.GroupIndexFields(session(r).IndexFields()))
}

func (s *Server) handleSelectField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := session(r)
	if _, err := d.SelectField(req.Field); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	base, _, err := session(r).Layers(chi.URLParam(r, "pane"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeLayerGeoJSON(w, base)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	_, overlay, err := session(r).Layers(chi.URLParam(r, "pane"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeLayerGeoJSON(w, overlay)
}

func (s *Server) writeLayerGeoJSON(w http.ResponseWriter, l *layer.Layer) {
	if l == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := l.MarshalGeoJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleLegends(w http.ResponseWriter, r *http.Request) {
	legends, err := session(r).Legends(chi.URLParam(r, "pane"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, legends)
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables []string `json:"variables"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := session(r)
	if err := d.SetSelection(req.Variables); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	d := session(r)
	d.ClearSelection()
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleRaceGroups(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Groups []string `json:"groups"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := session(r)
	if err := d.SetRaceGroups(req.Groups); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Generation runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	d := session(r)
	if _, err := d.Generate(ctx, kind, req.Name, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleResetIndex(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	d := session(r)
	if err := d.ResetIndex(kind); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	rows, err := session(r).Table(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	h, err := session(r).Histogram(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	d := session(r)
	d.Reset()
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode mapview.Mode `json:"mode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := session(r)
	switch req.Mode {
	case mapview.ModeComparison:
		if err := d.Compare(); err != nil {
			writeError(w, err)
			return
		}
	case mapview.ModeSingle:
		d.SingleView()
	default:
		writeMessage(w, http.StatusBadRequest, "mode must be single or comparison")
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pane string  `json:"pane"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
		Zoom float64 `json:"zoom"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pane == "" {
		req.Pane = mapview.PanePrimary
	}
	v, err := session(r).Pan(req.Pane, mapview.LatLng{Lat: req.Lat, Lng: req.Lng}, req.Zoom)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field  string   `json:"field"`
		Groups []string `json:"groups"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := session(r)
	if len(req.Groups) > 0 {
		if err := d.SetRaceGroups(req.Groups); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := d.Analyze(req.Field)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"table":  res.Table(),
		"legend": res.Legend(),
	})
}

func (s *Server) handleExportIndex(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	dl, err := session(r).ExportIndexCSV(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, dl)
}

func (s *Server) handleExportRaceStats(w http.ResponseWriter, r *http.Request) {
	var kind state.Kind
	if q := r.URL.Query().Get("kind"); q != "" {
		k, err := state.ParseKind(q)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "unknown index type")
			return
		}
		kind = k
	}
	dl, err := session(r).ExportRaceStats(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, dl)
}

func (s *Server) handleExportMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := raster.Options{Legends: q.Get("legends") != "false"}
	for name, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 8192 {
				writeMessage(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}
	dl, err := session(r).ExportMapPNG(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, dl)
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	dl, err := session(r).ExportWorkbook()
	if err != nil {
		writeError(w, err)
		return
	}
	writeDownload(w, dl)
}
