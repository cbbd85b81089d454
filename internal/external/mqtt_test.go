package external

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/types"
)

type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMQTT(clock types.Clock) *MQTTDevice {
	return NewMQTTDevice(MQTTConfig{
		Broker:            "tcp://localhost:1883",
		StateTopic:        "plug/state",
		AvailabilityTopic: "plug/availability",
		MaxAge:            time.Minute,
		Clock:             clock,
	})
}

func TestMQTTDevice_NoStateYet(t *testing.T) {
	dev := newMQTT(&movableClock{t: time.Now()})

	_, err := dev.GetState(context.Background())

	assert.Equal(t, types.ErrCodePollUnreachable, types.CodeOf(err))
}

func TestMQTTDevice_StatePayloads(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"ON", true},
		{"off", false},
		{"true", true},
		{"0", false},
		{`{"state":"ON","power":12.5}`, true},
		{`{"state":false}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			dev := newMQTT(&movableClock{t: time.Now()})
			dev.HandleMessage("plug/state", []byte(tt.payload))

			on, err := dev.GetState(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, on)
		})
	}
}

func TestMQTTDevice_IgnoresGarbage(t *testing.T) {
	dev := newMQTT(&movableClock{t: time.Now()})
	dev.HandleMessage("plug/state", []byte("ON"))
	dev.HandleMessage("plug/state", []byte("maybe"))

	on, err := dev.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
}

func TestMQTTDevice_StaleStateIsUnreachable(t *testing.T) {
	clock := &movableClock{t: time.Now()}
	dev := newMQTT(clock)
	dev.HandleMessage("plug/state", []byte("ON"))

	clock.Advance(2 * time.Minute)
	_, err := dev.GetState(context.Background())

	assert.Equal(t, types.ErrCodePollUnreachable, types.CodeOf(err))
}

func TestMQTTDevice_OfflineReadsAsPowerLost(t *testing.T) {
	dev := newMQTT(&movableClock{t: time.Now()})
	dev.HandleMessage("plug/state", []byte("ON"))
	dev.HandleMessage("plug/availability", []byte("offline"))

	on, err := dev.GetState(context.Background())
	require.NoError(t, err)
	assert.False(t, on)

	dev.HandleMessage("plug/availability", []byte("online"))
	on, err = dev.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
}

func TestParseSwitchPayload_Malformed(t *testing.T) {
	_, err := parseSwitchPayload([]byte(`{"power":1}`))
	assert.Equal(t, types.ErrCodePollMalformed, types.CodeOf(err))
}
