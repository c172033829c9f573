package alpaca

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

type DeviceHTTPHandler interface {
	RegisterRoutes(mux *http.ServeMux)
}

// DeviceHandler serves the members common to all device types.
type DeviceHandler struct {
	dev    Device
	logger log.FieldLogger
}

func NewDeviceHandler(dev Device, logger log.FieldLogger) *DeviceHandler {
	return &DeviceHandler{dev: dev, logger: logger}
}

func (h *DeviceHandler) RegisterRoutes(mux *http.ServeMux) {
	h.get(mux, "/name", h.handleName)
	h.get(mux, "/description", h.handleDescription)
	h.get(mux, "/driverinfo", h.handleDriverInfo)
	h.get(mux, "/driverversion", h.handleDriverVersion)
	h.get(mux, "/interfaceversion", h.handleInterfaceVersion)
	h.get(mux, "/devicestate", h.handleState)
	h.get(mux, "/supportedactions", h.handleSupportedActions)

	h.get(mux, "/connected", h.handleConnected)
	h.put(mux, "/connected", h.handleSetConnected)
	h.get(mux, "/connecting", h.handleConnecting)
	h.put(mux, "/connect", h.handleConnect)
	h.put(mux, "/disconnect", h.handleDisconnect)
	h.put(mux, "/action", h.handleAction)
}

func (h *DeviceHandler) get(mux *http.ServeMux, path string, fn apiFunc) {
	mux.Handle("GET "+path, handleAPI(fn, h.logger))
}

func (h *DeviceHandler) put(mux *http.ServeMux, path string, fn apiFunc) {
	mux.Handle("PUT "+path, handleAPI(fn, h.logger))
}

func (h *DeviceHandler) handleName(r *Request) (any, error) {
	return h.dev.DeviceInfo().Name, nil
}

func (h *DeviceHandler) handleDescription(r *Request) (any, error) {
	return h.dev.DeviceInfo().Description, nil
}

func (h *DeviceHandler) handleDriverInfo(r *Request) (any, error) {
	return h.dev.DriverInfo().Name, nil
}

func (h *DeviceHandler) handleDriverVersion(r *Request) (any, error) {
	return h.dev.DriverInfo().Version, nil
}

func (h *DeviceHandler) handleInterfaceVersion(r *Request) (any, error) {
	return h.dev.DriverInfo().InterfaceVersion, nil
}

func (h *DeviceHandler) handleState(r *Request) (any, error) {
	return h.dev.GetState(), nil
}

func (h *DeviceHandler) handleSupportedActions(r *Request) (any, error) {
	actions := h.dev.SupportedActions()
	if actions == nil {
		actions = []string{}
	}
	return actions, nil
}

func (h *DeviceHandler) handleConnected(r *Request) (any, error) {
	return h.dev.Connected(), nil
}

func (h *DeviceHandler) handleSetConnected(r *Request) (any, error) {
	connected, err := r.BoolParam("Connected")
	if err != nil {
		return nil, err
	}
	if connected == h.dev.Connected() {
		return nil, nil
	}
	if connected {
		return nil, h.dev.Connect()
	}
	return nil, h.dev.Disconnect()
}

func (h *DeviceHandler) handleConnecting(r *Request) (any, error) {
	return h.dev.Connecting(), nil
}

func (h *DeviceHandler) handleConnect(r *Request) (any, error) {
	if h.dev.Connected() {
		return nil, nil
	}
	return nil, h.dev.Connect()
}

func (h *DeviceHandler) handleDisconnect(r *Request) (any, error) {
	if !h.dev.Connected() {
		return nil, nil
	}
	return nil, h.dev.Disconnect()
}

func (h *DeviceHandler) handleAction(r *Request) (any, error) {
	action, err := r.Param("Action")
	if err != nil {
		return nil, err
	}
	params, err := r.Param("Parameters")
	if err != nil {
		return nil, err
	}

	action = strings.ToLower(strings.TrimSpace(action))
	supported := false
	for _, a := range h.dev.SupportedActions() {
		if strings.EqualFold(a, action) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, ErrActionNotImplemented
	}

	h.logger.Debugf("Action %s(%q)", action, params)
	return h.dev.Action(action, params)
}
