package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"powerwatch/internal/types"
)

// TelegramConfig addresses one bot and one chat.
type TelegramConfig struct {
	APIURL string
	Token  types.SecretString
	ChatID string
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// TelegramNotifier delivers messages through the Bot API.
type TelegramNotifier struct {
	*BaseClient
	cfg TelegramConfig
}

// NewTelegramBaseClient returns the transport used for chat delivery.
func NewTelegramBaseClient(timeout time.Duration) *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: timeout},
		DefaultRetryPolicy(),
		"powerwatch",
		WithBreaker("telegram", 5, 30*time.Second),
	)
}

// NewTelegramNotifier creates a TelegramNotifier.
func NewTelegramNotifier(base *BaseClient, cfg TelegramConfig) *TelegramNotifier {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &TelegramNotifier{BaseClient: base, cfg: cfg}
}

// Send posts text to the chat. silent suppresses the recipient's sound.
func (n *TelegramNotifier) Send(ctx context.Context, text string, silent bool) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.cfg.ChatID, Text: text, DisableNotification: silent})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode message", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.APIURL, n.cfg.Token.Unmask())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build message request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeNotifyDelivery, "chat service unavailable", n.redact(err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var tr telegramResponse
	_ = json.Unmarshal(raw, &tr)
	if resp.StatusCode != http.StatusOK || !tr.OK {
		return types.NewAppError(types.ErrCodeNotifyDelivery,
			fmt.Sprintf("chat service rejected message: %d %s", resp.StatusCode, tr.Description), nil)
	}
	return nil
}

// redact removes the bot token, which transport errors quote as part of the URL.
func (n *TelegramNotifier) redact(err error) error {
	token := n.cfg.Token.Unmask()
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
}
