// Documentation: https://ascom-standards.org/api/?urls.primaryName=ASCOM+Alpaca+Management+API

package alpaca

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type ServerDescription struct {
	Name                string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// Server is an Alpaca management server that provides information
// about the server and the devices it manages.
type Server struct {
	mu          sync.RWMutex
	description ServerDescription
	devices     []Device

	db     *Store
	tmpl   *template.Template
	logger log.FieldLogger
}

// NewServer creates a new Server. Name and location come from the stored config.
func NewServer(description ServerDescription, devices []Device, db *Store, tmpl *template.Template) *Server {
	server := Server{
		description: description,
		devices:     devices,
		db:          db,
		tmpl:        tmpl,
		logger:      log.WithField("component", "server"),
	}

	if cfg, err := db.GetConfig(); err == nil {
		server.applyConfig(cfg)
	}
	return &server
}

func (s *Server) applyConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description.Name = cfg.ServerName
	s.description.Location = cfg.Location
}

func (s *Server) AddRoutes() *http.ServeMux {
	r := http.NewServeMux()

	// Add management routes
	r.Handle("GET /management/apiversions", handleMgm(s.handleAPIVersions))
	r.Handle("GET /management/v1/description", handleMgm(s.handleDescription))
	r.Handle("GET /management/v1/configureddevices", handleMgm(s.handleConfiguredDevices))
	r.HandleFunc("/setup", s.handleSetup)

	// Create handlers for each device
	for _, dev := range s.devices {
		mux := http.NewServeMux()
		var handler DeviceHTTPHandler

		info := dev.DeviceInfo()
		logger := log.WithFields(log.Fields{"device": info.Name, "number": info.Number})

		switch d := dev.(type) {
		case Focuser:
			s.logger.Infof("Creating new FocuserHandler for %s", info.Name)
			handler = NewFocuserHandler(d, logger)
		default:
			s.logger.Errorf("Unknown device type: %T", dev)
			handler = NewDeviceHandler(dev, logger)
		}
		handler.RegisterRoutes(mux)

		devType := strings.ToLower(info.Type.String())
		apiPrefix := fmt.Sprintf("/api/v1/%s/%d", devType, info.Number)
		r.Handle(apiPrefix+"/", http.StripPrefix(apiPrefix, mux))

		if sh, ok := dev.(SetupHandler); ok {
			setupPath := fmt.Sprintf("/setup/v1/%s/%d/setup", devType, info.Number)
			r.HandleFunc(setupPath, sh.HandleSetup)
		}
	}

	return r
}

func (s *Server) handleAPIVersions(r *Request) (any, error) {
	return []int{1}, nil
}

func (s *Server) handleDescription(r *Request) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.description, nil
}

func (s *Server) handleConfiguredDevices(r *Request) (any, error) {
	deviceInfo := make([]DeviceInfo, 0, len(s.devices))
	for _, device := range s.devices {
		deviceInfo = append(deviceInfo, device.DeviceInfo())
	}

	return deviceInfo, nil
}

// handleSetup returns a user interface for setting up the server.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.db.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		cfg, err := parseSetupForm(r)
		if err == nil {
			err = s.db.SetConfig(cfg)
		}
		if err != nil {
			s.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		s.logger.Infof("Setting config: %+v", cfg)
		s.applyConfig(cfg)
		s.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderSetupForm(w http.ResponseWriter, cfg Config, success bool, err string) {
	data := struct {
		Config
		Devices []DeviceInfo
		Success bool
		Error   string
	}{cfg, nil, success, err}

	for _, dev := range s.devices {
		data.Devices = append(data.Devices, dev.DeviceInfo())
	}

	if err := s.tmpl.ExecuteTemplate(w, "setup.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseSetupForm(r *http.Request) (Config, error) {
	if err := r.ParseForm(); err != nil {
		return Config{}, fmt.Errorf("error parsing form: %v", err)
	}

	cfg := Config{
		ServerName:       strings.TrimSpace(r.FormValue("server-name")),
		Location:         strings.TrimSpace(r.FormValue("location")),
		DiscoveryEnabled: r.FormValue("discovery") == "true",
	}
	return cfg, cfg.validate()
}
