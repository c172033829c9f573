package alpaca

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"lynx-alpaca/templates"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "alpaca.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := NewStore(db)
	require.NoError(t, err)
	return st
}

func newTestServer(t *testing.T, devices ...Device) (*Server, http.Handler) {
	t.Helper()
	tmpl, err := templates.LoadTemplates()
	require.NoError(t, err)

	desc := ServerDescription{Manufacturer: "Test", ManufacturerVersion: "1.0"}
	s := NewServer(desc, devices, newTestStore(t), tmpl)
	return s, s.AddRoutes()
}

func TestStoreDefaults(t *testing.T) {
	st := newTestStore(t)

	cfg, err := st.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, cfg)

	assert.Error(t, st.SetConfig(Config{ServerName: " "}))

	cfg.Location = "Backyard"
	require.NoError(t, st.SetConfig(cfg))
	cfg, err = st.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "Backyard", cfg.Location)
}

func TestManagementAPI(t *testing.T) {
	_, h := newTestServer(t, &fakeFocuser{number: 0}, &fakeFocuser{number: 1})

	resp := decode(t, serve(h, http.MethodGet, "/management/apiversions?ClientTransactionID=1", nil))
	assert.Equal(t, []any{float64(1)}, resp.Value)

	resp = decode(t, serve(h, http.MethodGet, "/management/v1/description", nil))
	desc, ok := resp.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, defaultConfig.ServerName, desc["ServerName"])
	assert.Equal(t, "Test", desc["Manufacturer"])
	assert.Equal(t, defaultConfig.Location, desc["Location"])

	rec := serve(h, http.MethodGet, "/management/v1/configureddevices", nil)
	var devices struct {
		Value []DeviceInfo
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices.Value, 2)
	assert.Equal(t, DeviceTypeFocuser, devices.Value[1].Type)
	assert.Equal(t, 1, devices.Value[1].Number)
	assert.Equal(t, "5f0b6d1c-fake", devices.Value[0].UniqueID)
}

func TestServerSetup(t *testing.T) {
	s, h := newTestServer(t, &fakeFocuser{})

	rec := serve(h, http.MethodGet, "/setup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/setup/v1/focuser/0/setup"`)

	rec = serve(h, http.MethodPost, "/setup", url.Values{
		"server-name": {"Roll-off roof"},
		"location":    {"Backyard pier"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Settings saved.")

	cfg, err := s.db.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{ServerName: "Roll-off roof", Location: "Backyard pier"}, cfg)

	resp := decode(t, serve(h, http.MethodGet, "/management/v1/description", nil))
	assert.Equal(t, "Roll-off roof", resp.Value.(map[string]any)["ServerName"])

	rec = serve(h, http.MethodPost, "/setup", url.Values{"server-name": {""}})
	assert.Contains(t, rec.Body.String(), `class="error"`)

	rec = serve(h, http.MethodDelete, "/setup", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeviceSetupRoute(t *testing.T) {
	dev := &fakeFocuser{number: 2}
	_, h := newTestServer(t, dev)

	rec := serve(h, http.MethodGet, "/setup/v1/focuser/2/setup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "focuser setup", rec.Body.String())
	assert.Equal(t, 1, dev.setupCalls)
}

func TestCommonDeviceRoutes(t *testing.T) {
	dev := &fakeFocuser{actions: []string{"home", "status"}}
	_, h := newTestServer(t, dev)

	resp := decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/name", nil))
	assert.Equal(t, "Fake focuser", resp.Value)
	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/description", nil))
	assert.Equal(t, "Focuser for tests", resp.Value)
	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/driverinfo", nil))
	assert.Equal(t, "Fake driver", resp.Value)
	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/driverversion", nil))
	assert.Equal(t, "0.1", resp.Value)
	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/interfaceversion", nil))
	assert.Equal(t, float64(4), resp.Value)
	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/supportedactions", nil))
	assert.Equal(t, []any{"home", "status"}, resp.Value)

	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/connected", nil))
	assert.Equal(t, false, resp.Value)

	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/connected", url.Values{"Connected": {"true"}}))
	assert.True(t, dev.Connected())
	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/disconnect", url.Values{}))
	assert.False(t, dev.Connected())
	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/connect", url.Values{}))
	assert.True(t, dev.Connected())

	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/connecting", nil))
	assert.Equal(t, false, resp.Value)

	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/devicestate", nil))
	state, ok := resp.Value.([]any)
	require.True(t, ok)
	assert.Len(t, state, 3)

	rec := serve(h, http.MethodPut, "/api/v1/focuser/0/connected", url.Values{"Connected": {"yes"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/v1/focuser/0/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(h, http.MethodGet, "/api/v1/focuser/1/name", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionRoute(t *testing.T) {
	dev := &fakeFocuser{connected: true, actions: []string{"home"}}
	_, h := newTestServer(t, dev)

	resp := decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/action", url.Values{
		"Action":     {"Home"},
		"Parameters": {""},
	}))
	assert.Equal(t, 0, resp.ErrorNumber)
	assert.Equal(t, "done", resp.Value)
	assert.Equal(t, "home:", dev.lastAction)

	resp = decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/action", url.Values{
		"Action":     {"selfdestruct"},
		"Parameters": {""},
	}))
	assert.Equal(t, ErrNumActionNotImplemented, resp.ErrorNumber)

	rec := serve(h, http.MethodPut, "/api/v1/focuser/0/action", url.Values{"Action": {"home"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFocuserRoutes(t *testing.T) {
	dev := &fakeFocuser{}
	_, h := newTestServer(t, dev)

	resp := decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/position", nil))
	assert.Equal(t, ErrNumNotConnected, resp.ErrorNumber)

	require.NoError(t, dev.Connect())

	getTests := []struct {
		member   string
		expected any
	}{
		{"absolute", true},
		{"ismoving", false},
		{"maxincrement", float64(1000)},
		{"maxstep", float64(10000)},
		{"position", float64(0)},
		{"tempcomp", false},
		{"tempcompavailable", true},
		{"temperature", 4.5},
	}
	for _, tc := range getTests {
		t.Run(tc.member, func(t *testing.T) {
			resp := decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/"+tc.member, nil))
			assert.Equal(t, 0, resp.ErrorNumber)
			assert.Equal(t, tc.expected, resp.Value)
		})
	}

	resp = decode(t, serve(h, http.MethodGet, "/api/v1/focuser/0/stepsize", nil))
	assert.Equal(t, ErrNumNotImplemented, resp.ErrorNumber)

	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/move", url.Values{"Position": {"2500"}}))
	assert.Equal(t, 2500, dev.position)

	resp = decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/move", url.Values{"Position": {"20000"}}))
	assert.Equal(t, ErrNumInvalidValue, resp.ErrorNumber)

	rec := serve(h, http.MethodPut, "/api/v1/focuser/0/move", url.Values{"Position": {"far"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/tempcomp", url.Values{"TempComp": {"True"}}))
	assert.True(t, dev.tempComp)

	dev.moving = true
	decode(t, serve(h, http.MethodPut, "/api/v1/focuser/0/halt", url.Values{}))
	assert.False(t, dev.moving)

	rec = serve(h, http.MethodGet, "/api/v1/focuser/0/move", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
