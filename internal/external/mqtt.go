package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"powerwatch/internal/types"
)

// MQTTConfig describes the broker and topics of a locally bridged plug.
type MQTTConfig struct {
	Broker            string
	ClientID          string
	StateTopic        string
	AvailabilityTopic string // optional
	MaxAge            time.Duration
	ConnectTimeout    time.Duration
	Clock             types.Clock
	Logger            *slog.Logger
}

// MQTTDevice serves the latest retained plug state received over MQTT.
// The plug is powered from the monitored line, so "offline" on the
// availability topic reads as power lost.
type MQTTDevice struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	on        bool
	available bool
	seen      bool
	updatedAt time.Time
}

// NewMQTTDevice creates an MQTTDevice. Call Connect before polling.
func NewMQTTDevice(cfg MQTTConfig) *MQTTDevice {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MQTTDevice{cfg: cfg, available: true}
}

// Connect dials the broker and subscribes. Subscriptions are restored on
// every reconnect.
func (d *MQTTDevice) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(d.cfg.Broker).
		SetClientID(d.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetOnConnectHandler(d.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			d.cfg.Logger.Warn("mqtt connection lost", "broker", d.cfg.Broker, "error", err)
		})

	d.client = mqtt.NewClient(opts)
	tok := d.client.Connect()
	if !tok.WaitTimeout(d.cfg.ConnectTimeout) {
		return types.NewAppError(types.ErrCodePollUnreachable, "mqtt connect timed out", nil)
	}
	if err := tok.Error(); err != nil {
		return types.NewAppError(types.ErrCodePollUnreachable, "mqtt connect failed", err)
	}
	d.cfg.Logger.InfoContext(ctx, "mqtt connected", "broker", d.cfg.Broker, "state_topic", d.cfg.StateTopic)
	return nil
}

// Close disconnects from the broker.
func (d *MQTTDevice) Close() {
	if d.client != nil {
		d.client.Disconnect(250)
	}
}

func (d *MQTTDevice) subscribe(c mqtt.Client) {
	topics := map[string]byte{d.cfg.StateTopic: 1}
	if d.cfg.AvailabilityTopic != "" {
		topics[d.cfg.AvailabilityTopic] = 1
	}
	tok := c.SubscribeMultiple(topics, func(_ mqtt.Client, msg mqtt.Message) {
		d.HandleMessage(msg.Topic(), msg.Payload())
	})
	if tok.WaitTimeout(d.cfg.ConnectTimeout) && tok.Error() != nil {
		d.cfg.Logger.Error("mqtt subscribe failed", "error", tok.Error())
	}
}

// HandleMessage applies one message from the state or availability topic.
// Unrecognized payloads are logged and ignored.
func (d *MQTTDevice) HandleMessage(topic string, payload []byte) {
	switch topic {
	case d.cfg.StateTopic:
		on, err := parseSwitchPayload(payload)
		if err != nil {
			d.cfg.Logger.Warn("ignoring mqtt state payload", "topic", topic, "error", err)
			return
		}
		d.mu.Lock()
		d.on, d.seen, d.updatedAt = on, true, d.cfg.Clock.Now()
		d.mu.Unlock()

	case d.cfg.AvailabilityTopic:
		v := strings.ToLower(strings.TrimSpace(string(payload)))
		d.mu.Lock()
		d.available = v != "offline"
		d.updatedAt = d.cfg.Clock.Now()
		d.mu.Unlock()
	}
}

// GetState returns the last received state. No state yet, or a state older
// than MaxAge, is poll_device_unreachable.
func (d *MQTTDevice) GetState(_ context.Context) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.available {
		return false, nil
	}
	if !d.seen {
		return false, types.NewAppError(types.ErrCodePollUnreachable, "no state received from device yet", nil)
	}
	if age := d.cfg.Clock.Now().Sub(d.updatedAt); age > d.cfg.MaxAge {
		return false, types.NewAppError(types.ErrCodePollUnreachable,
			fmt.Sprintf("device state is stale (%s old)", age.Truncate(time.Second)), nil)
	}
	return d.on, nil
}

// parseSwitchPayload accepts ON/OFF, true/false, 1/0 and {"state": ...}.
func parseSwitchPayload(payload []byte) (bool, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var obj struct {
			State json.RawMessage `json:"state"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil || len(obj.State) == 0 {
			return false, types.NewAppError(types.ErrCodePollMalformed, "state object has no state field", err)
		}
		s = strings.Trim(string(obj.State), `"`)
	}
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, types.NewAppError(types.ErrCodePollMalformed, fmt.Sprintf("unrecognized state %q", s), nil)
}
