package api

import (
	"encoding/hex"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/httputil"
)

// PacketResponse is the reply of /debug/send-packet.
type PacketResponse struct {
	Sent     string       `json:"sent"`
	Received string       `json:"received"`
	Statuses []dxl.Status `json:"statuses"`
	Errors   []string     `json:"errors,omitempty"`
}

// AttachAdminRoutes mounts the bus debugging routes under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// POST packet=<hex> writes a raw instruction and decodes 4-byte status
	// replies, e.g. a sync read of present positions.
	debug.HandleSilentFunc("send-packet", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		raw := strings.Map(func(r rune) rune {
			if r == ' ' || r == ':' || r == '\n' || r == '\t' {
				return -1
			}
			return r
		}, r.FormValue("packet"))
		pkt, err := hex.DecodeString(raw)
		if err != nil || len(pkt) == 0 {
			httputil.BadRequest(w, "packet must be non-empty hex")
			return
		}
		if _, _, err := dxl.ParseInstruction(pkt); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}

		resp, err := s.ctrl.Exchange(r.Context(), pkt)
		if err != nil {
			writeError(w, err)
			return
		}
		out := PacketResponse{
			Sent:     hex.EncodeToString(pkt),
			Received: hex.EncodeToString(resp),
			Statuses: []dxl.Status{},
		}
		statuses, errs := dxl.ScanStatuses(resp, int(dxl.SizePresentPosition))
		out.Statuses = append(out.Statuses, statuses...)
		for _, e := range errs {
			out.Errors = append(out.Errors, e.Error())
		}
		httputil.WriteJSONOK(w, out)
	})

	debug.KVFunc("Telemetry streams", func() interface{} { return s.hub.Subscribers() })
	debug.KVFunc("Telemetry dropped", func() interface{} { return s.hub.Dropped() })
}
