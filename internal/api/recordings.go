package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/minihead/minihead/internal/db"
	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/httputil"
	"github.com/minihead/minihead/internal/motion"
)

// currentRecording names the controller's in-memory buffer in the chart
// route.
const currentRecording = "current"

// echartsAssetsHost serves the ECharts script for rendered charts.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ToStored converts a controller buffer to its stored form.
func ToStored(rec motion.Recording, name, geometry string) *db.Recording {
	out := &db.Recording{
		Name:     name,
		Geometry: geometry,
		MotorIDs: make([]int, len(rec.MotorIDs)),
		Cadence:  rec.Cadence,
		Frames:   make([][]float64, len(rec.Frames)),
	}
	for i, id := range rec.MotorIDs {
		out.MotorIDs[i] = int(id)
	}
	for i, f := range rec.Frames {
		out.Frames[i] = append([]float64(nil), f...)
	}
	return out
}

// FromStored converts a stored recording back to a controller buffer.
func FromStored(rec *db.Recording) (motion.Recording, error) {
	out := motion.Recording{
		MotorIDs: make([]uint8, len(rec.MotorIDs)),
		Cadence:  rec.Cadence,
		Frames:   make([]motion.Frame, len(rec.Frames)),
	}
	for i, id := range rec.MotorIDs {
		if id < 0 || id > 252 {
			return motion.Recording{}, fmt.Errorf("recording %s: motor id %d out of range", rec.ID, id)
		}
		out.MotorIDs[i] = uint8(id)
	}
	for i, f := range rec.Frames {
		out.Frames[i] = append(motion.Frame(nil), f...)
	}
	return out, nil
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		httputil.ServiceUnavailable(w, "recording store disabled")
		return false
	}
	return true
}

func (s *Server) listRecordings(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	list, err := s.store.ListRecordings()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, list)
}

// SaveRequest is the body of POST /api/recordings.
type SaveRequest struct {
	Name string `json:"name"`
}

func (s *Server) saveRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req SaveRequest
	if r.ContentLength != 0 && !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if st := s.ctrl.State(); st == motion.StateRecording {
		writeError(w, fmt.Errorf("%w: %s", motion.ErrBusy, st))
		return
	}
	rec := s.ctrl.Recording()
	if len(rec.Frames) == 0 {
		writeError(w, motion.ErrNoRecording)
		return
	}
	if req.Name == "" {
		req.Name = "recording " + time.Now().Format(time.DateTime)
	}
	stored := ToStored(rec, req.Name, s.geometry)
	if err := s.store.SaveRecording(stored); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, db.RecordingSummary{
		ID:         stored.ID,
		Name:       stored.Name,
		Geometry:   stored.Geometry,
		MotorIDs:   stored.MotorIDs,
		Cadence:    stored.Cadence,
		FrameCount: len(stored.Frames),
		CreatedAt:  stored.CreatedAt,
	})
}

func (s *Server) showRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	rec, err := s.store.GetRecording(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) renameRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req SaveRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name must not be empty")
		return
	}
	if err := s.store.RenameRecording(r.PathValue("id"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.DeleteRecording(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	stored, err := s.store.GetRecording(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := FromStored(stored)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.ctrl.LoadRecording(rec); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

// chartRecording renders joint angles against time as an HTML line chart.
// The id "current" charts the controller's buffer.
func (s *Server) chartRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		title string
		rec   *db.Recording
	)
	if id == currentRecording {
		rec = ToStored(s.ctrl.Recording(), "current buffer", s.geometry)
		title = rec.Name
	} else {
		if !s.requireStore(w) {
			return
		}
		var err error
		if rec, err = s.store.GetRecording(id); err != nil {
			writeError(w, err)
			return
		}
		title = rec.Name
	}
	if len(rec.Frames) == 0 {
		writeError(w, motion.ErrNoRecording)
		return
	}

	var buf bytes.Buffer
	if err := renderChart(&buf, title, rec); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderChart(buf *bytes.Buffer, title string, rec *db.Recording) error {
	x := make([]string, len(rec.Frames))
	for i := range rec.Frames {
		x[i] = strconv.FormatFloat(float64(time.Duration(i)*rec.Cadence)/float64(time.Millisecond), 'f', 0, 64)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Minihead recording", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("geometry=%s frames=%d cadence=%s", rec.Geometry, len(rec.Frames), rec.Cadence)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (deg)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for m, id := range rec.MotorIDs {
		data := make([]opts.LineData, len(rec.Frames))
		for i, f := range rec.Frames {
			data[i] = opts.LineData{Value: dxl.Degrees(f[m])}
		}
		line.AddSeries(fmt.Sprintf("motor %d", id), data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line.Render(buf)
}
