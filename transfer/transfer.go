/*
Copyright 2024 Carebridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package transfer is the client for the external transfer API. A transfer
// request always carries a caller-derived idempotency key, so the processor
// collapses duplicate submissions even when this process crashes between
// submitting and recording the outcome.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/settlement/config"
	"github.com/carebridge/settlement/internal/request"
)

// ErrInDoubt marks a submission whose remote outcome is unknown: the call
// timed out or kept failing transiently until the retry budget ran out. The
// money may or may not have moved; only a reconciliation event or an
// explicit status re-check can say.
var ErrInDoubt = errors.New("transfer outcome unknown, awaiting reconciliation")

// RejectedError is a definitive refusal from the processor (4xx), e.g. an
// invalid destination account. Safe to surface to the caller; no money
// moved.
type RejectedError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("transfer rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Request is a single transfer submission.
type Request struct {
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Destination    string                 `json:"destination"`
	IdempotencyKey string                 `json:"-"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// Response is the processor's view of a transfer.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the transfer provider configured in
// config.TransferProviderConfig.
type Client struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	maxRetryElapsed time.Duration
}

func NewClient(cfg config.TransferProviderConfig) *Client {
	return &Client{
		baseURL: cfg.Url,
		apiKey:  cfg.ApiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.CallTimeoutSec) * time.Second,
		},
		maxRetryElapsed: time.Duration(cfg.MaxRetryElapsedSec) * time.Second,
	}
}

// CreateTransfer submits a transfer. Transient failures (network errors,
// 5xx) are retried with the same idempotency key until the retry budget or
// the context deadline runs out; exhaustion without a definitive answer
// returns ErrInDoubt. A 4xx returns a RejectedError immediately.
func (c *Client) CreateTransfer(ctx context.Context, req Request) (*Response, error) {
	var response *Response

	operation := func() error {
		r, err := c.submit(ctx, req)
		if err != nil {
			return err
		}
		response = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetryElapsed

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if err != nil {
		var rejected RejectedError
		if errors.As(err, &rejected) {
			return nil, rejected
		}
		logrus.Errorf("transfer submission for key %s exhausted retries: %v", req.IdempotencyKey, err)
		return nil, errors.Wrap(ErrInDoubt, err.Error())
	}
	return response, nil
}

func (c *Client) submit(ctx context.Context, req Request) (*Response, error) {
	payload, err := request.ToJsonReq(req)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "failed to encode transfer request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", payload)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network failure or call deadline: retryable, same key.
		return nil, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("transfer provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, backoff.Permanent(RejectedError{
			StatusCode: resp.StatusCode,
			Code:       body.Error.Code,
			Message:    body.Error.Message,
		})
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		// A 2xx with an unreadable body: the transfer may well have been
		// accepted, so this cannot be treated as a rejection.
		return nil, backoff.Permanent(errors.Wrap(err, "failed to decode transfer response"))
	}
	return &response, nil
}

// GetTransferByIdempotencyKey re-checks the current remote status of a
// submission. Operators use this before re-submitting anything that went
// in-doubt.
func (c *Client) GetTransferByIdempotencyKey(ctx context.Context, key string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/transfers?idempotency_key=%s", c.baseURL, key), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var response Response
	resp, err := request.Call(httpReq, &response)
	if resp != nil {
		defer func(body io.ReadCloser) {
			if err := body.Close(); err != nil {
				logrus.Error(err)
			}
		}(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			// The processor never saw the submission; nothing moved.
			return &Response{Status: "not_found"}, nil
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "transfer status check failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transfer status check returned %d", resp.StatusCode)
	}
	return &response, nil
}
