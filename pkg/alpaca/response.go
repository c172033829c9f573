package alpaca

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Global transaction counter
var txCounter atomic.Uint32

type baseResponse struct {
	ClientTransactionID uint32 `json:"ClientTransactionID"`
	ServerTransactionID uint32 `json:"ServerTransactionID"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ErrorMessage        string `json:"ErrorMessage"`
	Value               any    `json:"Value,omitempty"`
}

// BadRequestError makes the handler answer with HTTP 400 instead of an Alpaca
// error. It is used for missing or unparseable parameters.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

// Request carries the parameters of an Alpaca call.
type Request struct {
	*http.Request
	params url.Values
	exact  bool
}

// newRequest collects the parameters from the query string (GET) or the form
// body (PUT). Query parameter names are matched case-insensitively, body
// parameter names exactly.
func newRequest(r *http.Request) (*Request, error) {
	req := &Request{Request: r}

	if r.Method == http.MethodPut {
		if err := r.ParseForm(); err != nil {
			return nil, badRequest("invalid form body: %v", err)
		}
		req.params = r.PostForm
		req.exact = true
	} else {
		req.params = r.URL.Query()
	}
	return req, nil
}

func (r *Request) lookup(name string) (string, bool) {
	if v, ok := r.params[name]; ok && len(v) > 0 {
		return v[0], true
	}
	if r.exact {
		return "", false
	}
	for k, v := range r.params {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// Param returns a required parameter.
func (r *Request) Param(name string) (string, error) {
	v, ok := r.lookup(name)
	if !ok {
		return "", badRequest("missing parameter %s", name)
	}
	return v, nil
}

// IntParam returns a required integer parameter.
func (r *Request) IntParam(name string) (int, error) {
	v, err := r.Param(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, badRequest("parameter %s is not an integer: %q", name, v)
	}
	return n, nil
}

// BoolParam returns a required boolean parameter ("true" or "false", any case).
func (r *Request) BoolParam(name string) (bool, error) {
	v, err := r.Param(name)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, badRequest("parameter %s is not a boolean: %q", name, v)
}

// clientTxID returns the ClientTransactionID, 0 when absent.
func (r *Request) clientTxID() (uint32, error) {
	return r.optionalUint("ClientTransactionID")
}

func (r *Request) optionalUint(name string) (uint32, error) {
	v, ok := r.lookup(name)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, badRequest("%s must be an unsigned integer: %q", name, v)
	}
	return uint32(n), nil
}

// apiFunc handles one Alpaca member and returns its value.
type apiFunc func(r *Request) (any, error)

// apiHandler wraps an apiFunc in the Alpaca response envelope.
type apiHandler struct {
	fn     apiFunc
	logger log.FieldLogger
}

func handleMgm(fn apiFunc) http.Handler {
	return apiHandler{fn: fn, logger: log.WithField("component", "management")}
}

func handleAPI(fn apiFunc, logger log.FieldLogger) http.Handler {
	return apiHandler{fn: fn, logger: logger}
}

func (h apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := newRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := req.optionalUint("ClientID"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txID, err := req.clientTxID()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := baseResponse{
		ClientTransactionID: txID,
		ServerTransactionID: txCounter.Add(1),
	}

	value, err := h.fn(req)
	if err != nil {
		var br *BadRequestError
		if errors.As(err, &br) {
			http.Error(w, br.Message, http.StatusBadRequest)
			return
		}
		ae := asError(err)
		h.logger.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
		response.ErrorNumber = ae.Number
		response.ErrorMessage = ae.Message
	} else {
		response.Value = value
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}
