package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/types"
)

const (
	tuyaAccessID = "access-id"
	tuyaSecret   = "access-secret"
	tuyaDeviceID = "bf123"
)

type tuyaServer struct {
	*httptest.Server
	tokenCalls  atomic.Int32
	statusCalls atomic.Int32
	status      string
	badSign     atomic.Bool
}

// expectedSign recomputes the signature the way the cloud verifies it.
func expectedSign(r *http.Request) string {
	str := r.Header.Get("client_id") + r.Header.Get("access_token") + r.Header.Get("t") + r.Header.Get("nonce") +
		r.Method + "\n" + emptyBodyHash + "\n\n" + r.URL.RequestURI()
	mac := hmac.New(sha256.New, []byte(tuyaSecret))
	mac.Write([]byte(str))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func newTuyaServer(t *testing.T, status string) *tuyaServer {
	t.Helper()
	ts := &tuyaServer{status: status}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("sign") != expectedSign(r) {
			ts.badSign.Store(true)
			w.Write([]byte(`{"success":false,"code":1004,"msg":"sign invalid"}`))
			return
		}
		switch {
		case r.URL.Path == "/v1.0/token":
			ts.tokenCalls.Add(1)
			w.Write([]byte(`{"success":true,"result":{"access_token":"tok-1","expire_time":7200}}`))
		case r.URL.Path == "/v1.0/devices/"+tuyaDeviceID+"/status":
			ts.statusCalls.Add(1)
			if r.Header.Get("access_token") != "tok-1" {
				w.Write([]byte(`{"success":false,"code":1010,"msg":"token invalid"}`))
				return
			}
			w.Write([]byte(ts.status))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTuya(url string) *TuyaDevice {
	return NewTuyaDevice(newTestClient(NoRetry()), TuyaConfig{
		Endpoint:  url,
		AccessID:  tuyaAccessID,
		AccessKey: types.SecretString(tuyaSecret),
		DeviceID:  tuyaDeviceID,
		Clock:     fixedClock{time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)},
	})
}

func TestTuyaDevice_GetState(t *testing.T) {
	ts := newTuyaServer(t, `{"success":true,"result":[{"code":"countdown_1","value":0},{"code":"switch_1","value":true}]}`)
	dev := newTuya(ts.URL)

	on, err := dev.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)

	_, err = dev.GetState(context.Background())
	require.NoError(t, err)

	assert.False(t, ts.badSign.Load(), "signature mismatch")
	assert.Equal(t, int32(1), ts.tokenCalls.Load(), "token is cached")
	assert.Equal(t, int32(2), ts.statusCalls.Load())
}

func TestTuyaDevice_SwitchOff(t *testing.T) {
	ts := newTuyaServer(t, `{"success":true,"result":[{"code":"switch_1","value":false}]}`)

	on, err := newTuya(ts.URL).GetState(context.Background())

	require.NoError(t, err)
	assert.False(t, on)
}

func TestTuyaDevice_MissingSwitchCode(t *testing.T) {
	ts := newTuyaServer(t, `{"success":true,"result":[{"code":"cur_power","value":12}]}`)

	_, err := newTuya(ts.URL).GetState(context.Background())

	assert.Equal(t, types.ErrCodePollMalformed, types.CodeOf(err))
}

func TestTuyaDevice_NonBooleanSwitch(t *testing.T) {
	ts := newTuyaServer(t, `{"success":true,"result":[{"code":"switch_1","value":"yes"}]}`)

	_, err := newTuya(ts.URL).GetState(context.Background())

	assert.Equal(t, types.ErrCodePollMalformed, types.CodeOf(err))
}

func TestTuyaDevice_OfflineDeviceIsUnreachable(t *testing.T) {
	ts := newTuyaServer(t, `{"success":false,"code":2001,"msg":"device is offline"}`)

	_, err := newTuya(ts.URL).GetState(context.Background())

	assert.Equal(t, types.ErrCodePollUnreachable, types.CodeOf(err))
}

func TestTuyaDevice_InvalidTokenIsRefetched(t *testing.T) {
	ts := newTuyaServer(t, `{"success":true,"result":[{"code":"switch_1","value":true}]}`)
	dev := newTuya(ts.URL)
	dev.token = "stale"
	dev.expiresAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := dev.GetState(context.Background())
	assert.Equal(t, types.ErrCodePollUnreachable, types.CodeOf(err))

	on, err := dev.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, int32(1), ts.tokenCalls.Load())
}

func TestTuyaDevice_CloudDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTuya(server.URL).GetState(context.Background())

	assert.Equal(t, types.ErrCodePollUnreachable, types.CodeOf(err))
}
