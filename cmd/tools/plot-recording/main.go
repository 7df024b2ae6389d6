// Command plot-recording renders a stored recording's joint angles to a PNG.
//
// Usage:
//
//	plot-recording -db minihead.db -id <uuid> -out nod.png
//	plot-recording -url http://localhost:8090 -id <uuid> -out nod.png
//	plot-recording -db minihead.db -list
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/minihead/minihead/internal/db"
	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/httputil"
	"github.com/minihead/minihead/internal/security"
)

var (
	dbPath    = flag.String("db", "", "Recording store to read from")
	serverURL = flag.String("url", "", "minihead server to fetch from instead of a local store")
	id        = flag.String("id", "", "Recording id")
	out       = flag.String("out", "", "Output PNG path (default: <recording name>.png)")
	list      = flag.Bool("list", false, "List stored recordings and exit")
	width     = flag.Float64("width", 14, "Plot width in inches")
	height    = flag.Float64("height", 6, "Plot height in inches")
)

// fetchRecording reads a recording from a running server.
func fetchRecording(client httputil.HTTPClient, base, recordingID string) (*db.Recording, error) {
	u, err := url.JoinPath(base, "api", "recordings", recordingID)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	var rec db.Recording
	if err := httputil.GetJSON(client, u, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// plotRecording draws one line per motor, angle in degrees against time.
func plotRecording(rec *db.Recording) (*plot.Plot, error) {
	if len(rec.Frames) == 0 {
		return nil, fmt.Errorf("recording %s has no frames", rec.ID)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s, %d frames at %s)", rec.Name, rec.Geometry, len(rec.Frames), rec.Cadence)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (deg)"
	p.Add(plotter.NewGrid())

	for m, motor := range rec.MotorIDs {
		pts := make(plotter.XYs, len(rec.Frames))
		for i, f := range rec.Frames {
			if len(f) != len(rec.MotorIDs) {
				return nil, fmt.Errorf("frame %d has %d angles for %d motors", i, len(f), len(rec.MotorIDs))
			}
			pts[i].X = (time.Duration(i) * rec.Cadence).Seconds()
			pts[i].Y = dxl.Degrees(f[m])
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(m)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("motor %d", motor), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// outputPath picks the PNG path for rec and keeps it inside the working or
// temp directory.
func outputPath(flagOut string, rec *db.Recording) (string, error) {
	path := flagOut
	if path == "" {
		path = security.SanitizeFilename(rec.Name) + ".png"
	}
	if err := security.ValidateExportPath(path); err != nil {
		return "", err
	}
	return path, nil
}

func printList(w io.Writer, recs []db.RecordingSummary) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %-24s %-6s %5d frames  %s\n",
			r.ID, r.Name, r.Geometry, r.FrameCount, r.CreatedAt.Format(time.DateTime))
	}
}

func main() {
	flag.Parse()

	if (*dbPath == "") == (*serverURL == "") {
		log.Fatal("exactly one of -db or -url is required")
	}

	var rec *db.Recording
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer store.Close()

		if *list {
			recs, err := store.ListRecordings()
			if err != nil {
				log.Fatalf("failed to list recordings: %v", err)
			}
			printList(os.Stdout, recs)
			return
		}
		if *id == "" {
			log.Fatal("-id is required")
		}
		if rec, err = store.GetRecording(*id); err != nil {
			log.Fatalf("failed to load recording: %v", err)
		}
	} else {
		if *id == "" {
			log.Fatal("-id is required")
		}
		client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
		var err error
		if rec, err = fetchRecording(client, *serverURL, *id); err != nil {
			log.Fatal(err)
		}
	}

	p, err := plotRecording(rec)
	if err != nil {
		log.Fatal(err)
	}
	path, err := outputPath(*out, rec)
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Save(vg.Length(*width)*vg.Inch, vg.Length(*height)*vg.Inch, path); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %s", path)
}
