package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/minihead/minihead/internal/db"
	"github.com/minihead/minihead/internal/httputil"
)

func sampleRecording() *db.Recording {
	return &db.Recording{
		ID:       "b2b7a2a0-0000-4000-8000-000000000001",
		Name:     "nod",
		Geometry: "mini6",
		MotorIDs: []int{1, 2},
		Cadence:  10 * time.Millisecond,
		Frames:   [][]float64{{0, 0.1}, {0.05, 0.12}, {0.1, 0.14}},
	}
}

func TestFetchRecording(t *testing.T) {
	body, err := json.Marshal(sampleRecording())
	require.NoError(t, err)

	client := httputil.NewMockHTTPClient().AddResponse(200, string(body))
	rec, err := fetchRecording(client, "http://head.local:8090/", "abc")
	require.NoError(t, err)
	assert.Equal(t, "nod", rec.Name)
	assert.Len(t, rec.Frames, 3)

	require.Len(t, client.Requests, 1)
	assert.Equal(t, "http://head.local:8090/api/recordings/abc", client.Requests[0].URL.String())
}

func TestFetchRecording_Errors(t *testing.T) {
	client := httputil.NewMockHTTPClient().AddResponse(404, `{"error":"recording not found: abc"}`)
	_, err := fetchRecording(client, "http://head.local", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "recording not found")

	client = httputil.NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))
	_, err = fetchRecording(client, "http://head.local", "abc")
	assert.ErrorContains(t, err, "connection refused")

	client = httputil.NewMockHTTPClient().AddResponse(200, "not json")
	_, err = fetchRecording(client, "http://head.local", "abc")
	assert.ErrorContains(t, err, "decode")
}

func TestPlotRecording_SavesPNG(t *testing.T) {
	p, err := plotRecording(sampleRecording())
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "nod")

	path := filepath.Join(t.TempDir(), "nod.png")
	require.NoError(t, p.Save(4*vg.Inch, 3*vg.Inch, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "output is a PNG")
}

func TestPlotRecording_Rejects(t *testing.T) {
	rec := sampleRecording()
	rec.Frames = nil
	_, err := plotRecording(rec)
	assert.Error(t, err)

	rec = sampleRecording()
	rec.Frames[1] = []float64{1}
	_, err = plotRecording(rec)
	assert.Error(t, err)
}

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	printList(&buf, []db.RecordingSummary{{ID: "id-1", Name: "nod", Geometry: "mini6", FrameCount: 42, CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}})
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "id-1"))
	assert.Contains(t, line, "42 frames")
	assert.Contains(t, line, "2026-03-01 12:00:00")
}

func TestOutputPath(t *testing.T) {
	t.Chdir(t.TempDir())
	rec := sampleRecording()
	rec.Name = "slow nod / left"

	path, err := outputPath("", rec)
	require.NoError(t, err)
	assert.Equal(t, "slow_nod_left.png", path)

	path, err = outputPath("plots/nod.png", rec)
	require.NoError(t, err)
	assert.Equal(t, "plots/nod.png", path)

	_, err = outputPath("/etc/nod.png", rec)
	assert.Error(t, err)
}
