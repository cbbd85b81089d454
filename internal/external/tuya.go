package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"powerwatch/internal/types"
)

// Tuya business error for an expired or revoked token.
const tuyaCodeTokenInvalid = 1010

// emptyBodyHash is the SHA-256 of an empty body.
const emptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// TuyaConfig identifies the cloud project and the monitored plug.
type TuyaConfig struct {
	Endpoint   string
	AccessID   string
	AccessKey  types.SecretString
	DeviceID   string
	SwitchCode string
	Clock      types.Clock
}

type tuyaEnvelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type tuyaToken struct {
	AccessToken string `json:"access_token"`
	ExpireTime  int64  `json:"expire_time"`
}

type tuyaStatus struct {
	Code  string          `json:"code"`
	Value json.RawMessage `json:"value"`
}

// TuyaDevice reads the plug's switch state from the Tuya cloud. The plug
// is powered from the monitored line, so a reachable "on" switch means the
// site has power.
type TuyaDevice struct {
	*BaseClient
	cfg TuyaConfig

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTuyaDevice creates a TuyaDevice. Polls are not retried here.
func NewTuyaDevice(base *BaseClient, cfg TuyaConfig) *TuyaDevice {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.SwitchCode == "" {
		cfg.SwitchCode = "switch_1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &TuyaDevice{BaseClient: base, cfg: cfg}
}

// GetState returns the switch value. A missing or non-boolean switch code is
// poll_malformed_response; anything else is poll_device_unreachable.
func (d *TuyaDevice) GetState(ctx context.Context) (bool, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return false, err
	}

	path := "/v1.0/devices/" + d.cfg.DeviceID + "/status"
	env, err := d.call(ctx, path, token)
	if err != nil {
		return false, err
	}
	if !env.Success {
		if env.Code == tuyaCodeTokenInvalid {
			d.clearToken()
		}
		return false, types.NewAppError(types.ErrCodePollUnreachable,
			fmt.Sprintf("device status rejected: %d %s", env.Code, env.Msg), nil)
	}

	var statuses []tuyaStatus
	if err := json.Unmarshal(env.Result, &statuses); err != nil {
		return false, types.NewAppError(types.ErrCodePollMalformed, "device status is not a list", err)
	}
	for _, s := range statuses {
		if s.Code != d.cfg.SwitchCode {
			continue
		}
		var on bool
		if err := json.Unmarshal(s.Value, &on); err != nil {
			return false, types.NewAppError(types.ErrCodePollMalformed,
				fmt.Sprintf("%s is not a boolean", d.cfg.SwitchCode), err)
		}
		return on, nil
	}
	return false, types.NewAppError(types.ErrCodePollMalformed,
		fmt.Sprintf("device status has no %s", d.cfg.SwitchCode), nil)
}

func (d *TuyaDevice) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.cfg.Clock.Now()
	if d.token != "" && now.Before(d.expiresAt) {
		return d.token, nil
	}

	env, err := d.call(ctx, "/v1.0/token?grant_type=1", "")
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", types.NewAppError(types.ErrCodePollUnreachable,
			fmt.Sprintf("token request rejected: %d %s", env.Code, env.Msg), nil)
	}
	var tok tuyaToken
	if err := json.Unmarshal(env.Result, &tok); err != nil || tok.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodePollMalformed, "token response has no access_token", err)
	}

	// Refresh a minute early.
	d.token = tok.AccessToken
	d.expiresAt = now.Add(time.Duration(tok.ExpireTime)*time.Second - time.Minute)
	return d.token, nil
}

func (d *TuyaDevice) clearToken() {
	d.mu.Lock()
	d.token = ""
	d.mu.Unlock()
}

// call performs a signed GET of pathAndQuery. token is empty for the token
// request itself.
func (d *TuyaDevice) call(ctx context.Context, pathAndQuery, token string) (*tuyaEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.Endpoint+pathAndQuery, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build device request", err)
	}

	t := strconv.FormatInt(d.cfg.Clock.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	req.Header.Set("client_id", d.cfg.AccessID)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", d.sign(http.MethodGet, pathAndQuery, token, t, nonce))
	if token != "" {
		req.Header.Set("access_token", token)
	}

	resp, err := d.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePollUnreachable, "device cloud unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodePollUnreachable,
			fmt.Sprintf("device cloud returned %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePollUnreachable, "failed to read device response", err)
	}
	var env tuyaEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodePollMalformed, "device response is not valid JSON", err)
	}
	return &env, nil
}

// sign computes the request signature:
// HMAC-SHA256(key, client_id + access_token + t + nonce + stringToSign),
// upper-case hex, where stringToSign is METHOD\nsha256(body)\n\nURL.
func (d *TuyaDevice) sign(method, pathAndQuery, token, t, nonce string) string {
	stringToSign := method + "\n" + emptyBodyHash + "\n\n" + pathAndQuery
	mac := hmac.New(sha256.New, []byte(d.cfg.AccessKey.Unmask()))
	mac.Write([]byte(d.cfg.AccessID + token + t + nonce + stringToSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
