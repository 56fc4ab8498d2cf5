// Package notify доставляет события торгов во внешний сервис уведомлений.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/model"
)

// ErrRateLimited возвращается, если сервис уведомлений ответил 429.
var ErrRateLimited = errors.New("notification service rate limited")

// Client инкапсулирует HTTP-взаимодействие с сервисом уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для сервиса уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send отправляет одно событие. При ответе 429 возвращает ErrRateLimited
// и паузу из заголовка Retry-After.
func (c *Client) Send(ctx context.Context, ev model.Event) (time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return 0, fmt.Errorf("notification client not configured")
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return retryAfter, ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return 0, nil
}
