package focuslynx

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"lynx-alpaca/pkg/lynx"
)

const (
	mqttTimeout  = 5 * time.Second
	stateOnline  = "online"
	stateOffline = "offline"
	stateAlert   = "alert"
	telemetryQoS = 0
	disconnectMS = 250
)

// publisher is the part of mqtt.Client the telemetry uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type telemetryMessage struct {
	Timestamp   string          `json:"timestamp"`
	Nickname    string          `json:"nickname"`
	Position    uint32          `json:"pos"`
	Target      uint32          `json:"target"`
	MaxPosition uint32          `json:"max_pos"`
	Temperature float64         `json:"temp"`
	Motion      string          `json:"motion"`
	TempComp    bool            `json:"temp_comp"`
	Flags       map[string]bool `json:"flags"`
}

// telemetry publishes the focuser status to an MQTT broker.
type telemetry struct {
	client publisher
	root   string
	logger log.FieldLogger
}

// createMQTTClient connects to the broker with a retained "offline" will on
// the state topic.
func createMQTTClient(cfg MQTTConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(clientID)
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(mqttTimeout)
	opts.SetAutoReconnect(true)
	opts.SetWill(cfg.TopicRoot+"/state", stateOffline, 1, true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", err)
	}
	return client, nil
}

func newTelemetry(client publisher, root string, logger log.FieldLogger) *telemetry {
	t := &telemetry{client: client, root: root, logger: logger}
	t.publishState(stateOnline)
	return t
}

func (t *telemetry) publish(topic string, retained bool, payload []byte) {
	token := t.client.Publish(t.root+"/"+topic, telemetryQoS, retained, payload)
	if !token.WaitTimeout(mqttTimeout) {
		t.logger.Warnf("Timeout publishing to %s/%s", t.root, topic)
		return
	}
	if err := token.Error(); err != nil {
		t.logger.Warnf("Failed to publish to %s/%s: %v", t.root, topic, err)
	}
}

func (t *telemetry) publishState(state string) {
	t.publish("state", true, []byte(state))
}

func (t *telemetry) publishStatus(st lynx.State) {
	msg := telemetryMessage{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Nickname:    st.Nickname,
		Position:    st.Position,
		Target:      st.TargetPosition,
		MaxPosition: st.MaxPosition,
		Temperature: st.Temperature,
		Motion:      st.Motion.String(),
		TempComp:    st.TempComp.Enabled,
		Flags:       st.Flags.Map(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		t.logger.Errorf("Failed to encode telemetry: %v", err)
		return
	}
	t.publish("telemetry", false, payload)
}

func (t *telemetry) close() {
	t.publishState(stateOffline)
	t.client.Disconnect(disconnectMS)
}
