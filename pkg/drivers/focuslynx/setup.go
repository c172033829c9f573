package focuslynx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lynx-alpaca/pkg/lynx"
	"lynx-alpaca/pkg/transport"
)

func (d *Driver) HandleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := d.store.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		d.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		cfg, err := d.parseSetupForm(r)
		if err == nil {
			err = d.store.SetConfig(cfg)
		}
		if err != nil {
			d.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		d.logger.Infof("Setting focuser config: address=%s target=%s", cfg.Address, cfg.Target)
		d.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Driver) renderSetupForm(w http.ResponseWriter, cfg Config, success bool, err string) {
	ports, perr := transport.ListPorts()
	if perr != nil {
		d.logger.Debugf("Failed to list serial ports: %v", perr)
	}

	data := struct {
		Config
		Number    int
		Models    []lynx.Model
		Ports     []string
		Connected bool
		Success   bool
		Error     string
	}{cfg, d.number, lynx.Models(), ports, d.Connected(), success, err}

	if err := d.tmpl.ExecuteTemplate(w, "focuser_setup.html", data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		d.logger.Errorf("Error rendering template: %v", err)
	}
}

func (d *Driver) parseSetupForm(r *http.Request) (Config, error) {
	if err := r.ParseForm(); err != nil {
		return Config{}, fmt.Errorf("error parsing form: %v", err)
	}

	cfg, err := d.store.GetConfig()
	if err != nil {
		cfg = defaultConfig(d.number)
	}
	cfg.Address = strings.TrimSpace(r.FormValue("address"))
	cfg.Target = strings.ToUpper(strings.TrimSpace(r.FormValue("target")))
	cfg.SyncMandatory = r.FormValue("sync-mandatory") == "true"
	cfg.DeviceType = strings.ToUpper(strings.TrimSpace(r.FormValue("device-type")))

	cfg.StepSize = 0
	if v := strings.TrimSpace(r.FormValue("step-size")); v != "" {
		size, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return cfg, fmt.Errorf("invalid step size: %q", v)
		}
		cfg.StepSize = uint16(size)
	}

	cfg.MaxIncrement = 0
	if v := strings.TrimSpace(r.FormValue("max-increment")); v != "" {
		if cfg.MaxIncrement, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("invalid max increment: %q", v)
		}
	}

	cfg.MQTT.Enabled = r.FormValue("mqtt-enabled") == "true"
	cfg.MQTT.Broker = strings.TrimSpace(r.FormValue("mqtt-broker"))
	cfg.MQTT.Username = r.FormValue("mqtt-username")
	cfg.MQTT.Password = r.FormValue("mqtt-password")
	cfg.MQTT.TopicRoot = strings.Trim(strings.TrimSpace(r.FormValue("mqtt-topic-root")), "/")

	return cfg, nil
}
