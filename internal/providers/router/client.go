package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zerocost/portal/internal/config"
	"github.com/zerocost/portal/internal/providers/router/domain"
	"go.uber.org/zap"
)

type client struct {
	baseURL     string
	adminSecret string
	http        *http.Client
	log         *zap.Logger
}

// NewClient builds the HTTP client for the zerocost router. Every call is a
// single bounded round trip; retries are the caller's concern.
func NewClient(cfg config.Config, log *zap.Logger) domain.Client {
	timeout := time.Duration(cfg.Router.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &client{
		baseURL:     strings.TrimRight(cfg.Router.BaseURL, "/"),
		adminSecret: cfg.Router.AdminSecret,
		http:        &http.Client{Timeout: timeout},
		log:         log.Named("providers.router"),
	}
}

type issueKeyResponse struct {
	Key   string `json:"key"`
	ZCKey string `json:"zc_key"`
}

func (c *client) IssueKey(ctx context.Context, email string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/keys", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.adminSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("router key issuance unreachable", zap.Error(err))
		return "", domain.ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logRejection("issue_key", resp)
		return "", domain.ErrRejected
	}

	var parsed issueKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.ErrRejected
	}
	key := parsed.Key
	if key == "" {
		key = parsed.ZCKey
	}
	if key == "" {
		c.log.Error("router returned no key")
		return "", domain.ErrRejected
	}
	return key, nil
}

func (c *client) FetchUsage(ctx context.Context, zcKey string) (*domain.Usage, error) {
	var usage domain.Usage
	if err := c.doBearer(ctx, http.MethodGet, "/v1/usage", zcKey, nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (c *client) ListProviderKeys(ctx context.Context, zcKey string) ([]domain.ProviderKey, error) {
	var keys []domain.ProviderKey
	if err := c.doBearer(ctx, http.MethodGet, "/v1/providers", zcKey, nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *client) AddProviderKey(ctx context.Context, zcKey, provider, apiKey string) error {
	payload := map[string]string{"provider": provider, "api_key": apiKey}
	return c.doBearer(ctx, http.MethodPost, "/v1/providers", zcKey, payload, nil)
}

func (c *client) DeleteProviderKey(ctx context.Context, zcKey, provider string) error {
	return c.doBearer(ctx, http.MethodDelete, "/v1/providers/"+provider, zcKey, nil, nil)
}

func (c *client) doBearer(ctx context.Context, method, path, zcKey string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+zcKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("router unreachable", zap.String("path", path), zap.Error(err))
		return domain.ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logRejection(path, resp)
		return domain.ErrRejected
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrRejected
	}
	return nil
}

func (c *client) logRejection(operation string, resp *http.Response) {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.log.Error("router rejected request",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", snippet),
	)
}
