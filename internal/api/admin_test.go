package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minihead/minihead/internal/dxl"
)

func (f *fixture) sendPacket(t *testing.T, mux *http.ServeMux, packet string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"packet": {packet}}
	req := httptest.NewRequest(http.MethodPost, "/debug/send-packet", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSendPacket(t *testing.T) {
	f := newFixture(t, false)
	mux := http.NewServeMux()
	f.srv.AttachAdminRoutes(mux)

	pkt := hex.EncodeToString(dxl.SyncReadPresentPosition([]uint8{1, 2}))

	w := f.sendPacket(t, mux, pkt)
	assert.Equal(t, http.StatusConflict, w.Code, "not connected yet")

	f.connect(t)
	f.bus.SetPosition(2, 3000)

	w = f.sendPacket(t, mux, pkt)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp PacketResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, pkt, resp.Sent)
	require.Len(t, resp.Statuses, 2)
	assert.Equal(t, uint8(2), resp.Statuses[1].ID)
	assert.Equal(t, int32(3000), resp.Statuses[1].Value)
	assert.Empty(t, resp.Errors)
}

func TestSendPacket_BadInput(t *testing.T) {
	f := newFixture(t, false)
	mux := http.NewServeMux()
	f.srv.AttachAdminRoutes(mux)
	f.connect(t)

	for _, packet := range []string{"", "zz", "ffff"} {
		w := f.sendPacket(t, mux, packet)
		assert.Equal(t, http.StatusBadRequest, w.Code, packet)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/send-packet", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
