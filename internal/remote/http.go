// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// HTTPClientConfig configures the HTTP record-store client.
type HTTPClientConfig struct {
	BaseURL   string
	Device    string
	AccessKey string
	Timeout   time.Duration

	// ChunkSize is the asset transfer chunk size in bytes. Defaults to 4 MiB.
	ChunkSize int64
}

type httpRecordStore struct {
	client    *resty.Client
	device    string
	accessKey string
	chunkSize int64
	logger    *logger.Logger

	mu    sync.RWMutex
	token string
	owner string

	transferMu sync.Mutex
	transfers  map[string]context.CancelFunc

	// wg tracks transfer goroutines so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// NewHTTPRecordStore builds the production RecordStore over HTTP.
func NewHTTPRecordStore(cfg HTTPClientConfig, log *logger.Logger) RecordStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4 << 20
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpRecordStore{
		client:    cli,
		device:    cfg.Device,
		accessKey: cfg.AccessKey,
		chunkSize: cfg.ChunkSize,
		logger:    log,
		transfers: make(map[string]context.CancelFunc),
	}
}

func (r *httpRecordStore) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

func (r *httpRecordStore) setSession(token, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = strings.TrimSpace(token)
	r.owner = owner
}

// authenticate requests a fresh session token for the configured device.
func (r *httpRecordStore) authenticate(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.TokenRequest{Device: r.device, AccessKey: r.accessKey}).
		Post("/api/auth/token")
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return err
	}

	var tr models.TokenResponse
	if err = json.Unmarshal(resp.Body(), &tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	r.setSession(tr.Token, tr.Owner)
	return nil
}

func (r *httpRecordStore) authedRequest(ctx context.Context) *resty.Request {
	req := r.client.R().SetContext(ctx)
	if token := r.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

// do runs one request, re-authenticating once on a rejected token.
func (r *httpRecordStore) do(ctx context.Context, issue func(req *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if r.Token() == "" && r.accessKey != "" {
		if err := r.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := issue(r.authedRequest(ctx))
	if err != nil {
		return nil, err
	}
	if mapped := mapHTTPError(resp); errors.Is(mapped, ErrUnauthorized) && r.accessKey != "" {
		if err = r.authenticate(ctx); err != nil {
			return nil, err
		}
		return issue(r.authedRequest(ctx))
	}
	return resp, nil
}

func (r *httpRecordStore) Submit(ctx context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post("/api/records/submit")
	})
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var sr models.SubmitResponse
	if err = json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return decodeOutcomes(sr.Outcomes), nil
}

func (r *httpRecordStore) Fetch(ctx context.Context, req models.FetchRequest) ([]models.RecordOutcome, error) {
	var resp *resty.Response

	// Fetches are idempotent; transient transport failures get a bounded
	// exponential retry before surfacing.
	attempt := func() error {
		var err error
		resp, err = r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
			return rr.SetHeader("Content-Type", "application/json").
				SetBody(req).
				Post("/api/records/fetch")
		})
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("record store unavailable: http %d", resp.StatusCode())
		}
		return nil
	}
	if err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)); err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	var fr models.FetchResponse
	if err := json.Unmarshal(resp.Body(), &fr); err != nil {
		return nil, fmt.Errorf("decode fetch response: %w", err)
	}
	return decodeOutcomes(fr.Outcomes), nil
}

func (r *httpRecordStore) CreateZone(ctx context.Context, scope models.Scope, zone string) error {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.SetHeader("Content-Type", "application/json").
			SetBody(models.ZoneRequest{Scope: scope, Zone: zone}).
			Post("/api/zones")
	})
	if err != nil {
		return fmt.Errorf("create zone request: %w", err)
	}
	return mapHTTPError(resp)
}

func (r *httpRecordStore) DeleteZone(ctx context.Context, scope models.Scope, zone string) error {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.Delete(fmt.Sprintf("/api/zones/%s/%s", scope, zone))
	})
	if err != nil {
		return fmt.Errorf("delete zone request: %w", err)
	}
	return mapHTTPError(resp)
}

func (r *httpRecordStore) CreateSubscription(ctx context.Context, scope models.Scope, zone string) error {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.SetHeader("Content-Type", "application/json").
			SetBody(models.SubscriptionRequest{Scope: scope, Zone: zone}).
			Post("/api/subscriptions")
	})
	if err != nil {
		return fmt.Errorf("create subscription request: %w", err)
	}
	return mapHTTPError(resp)
}

func (r *httpRecordStore) FetchLongLivedOperation(ctx context.Context, operationID string) (*models.OperationStatus, error) {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.Get("/api/operations/" + operationID)
	})
	if err != nil {
		return nil, fmt.Errorf("operation status request: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var st models.OperationStatus
	if err = json.Unmarshal(resp.Body(), &st); err != nil {
		return nil, fmt.Errorf("decode operation status: %w", err)
	}
	return &st, nil
}

func decodeOutcomes(wire []models.WireOutcome) []models.RecordOutcome {
	out := make([]models.RecordOutcome, 0, len(wire))
	for _, w := range wire {
		out = append(out, models.RecordOutcome{
			ID:     w.ID,
			Record: w.Record,
			Err:    outcomeError(w),
		})
	}
	return out
}
