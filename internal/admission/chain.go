/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package admission runs registered admission webhooks against resource
// writes. Mutating webhooks run first and may patch the spec; validating
// webhooks run afterwards against the final document.
package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/no8s/no8s/internal/metrics"
	"github.com/no8s/no8s/pkg/types"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSource lists the webhooks matching a write, ordered by ordering
// then id.
type WebhookSource interface {
	ListWebhooksFor(ctx context.Context, typeName string, typeVersion string, op types.Operation, webhookType types.WebhookType) ([]types.AdmissionWebhook, error)
}

// request is the document POSTed to a webhook endpoint.
type request struct {
	Operation   types.Operation `json:"operation"`
	Resource    *types.Resource `json:"resource"`
	OldResource *types.Resource `json:"old_resource,omitempty"`
}

// response is the document a webhook endpoint must answer with.
type response struct {
	Allowed bool              `json:"allowed"`
	Message string            `json:"message,omitempty"`
	Patches []json.RawMessage `json:"patches,omitempty"`
}

// Chain evaluates the admission webhooks registered for a resource type.
type Chain struct {
	source WebhookSource
	client *http.Client
	log    logr.Logger
}

func NewChain(source WebhookSource, client *http.Client, log logr.Logger) *Chain {
	if client == nil {
		client = &http.Client{}
	}
	return &Chain{source: source, client: client, log: log.WithName("admission")}
}

// Run evaluates the chain for a write. The returned document is the
// (possibly mutated) spec to persist; on a denial an AdmissionDeniedError is
// returned. Mutating webhooks run on DELETE too and may deny it, but any
// patches they return are discarded since there is no spec left to persist.
func (c *Chain) Run(ctx context.Context, op types.Operation, resource *types.Resource, old *types.Resource) (types.Document, error) {
	spec := resource.Spec.DeepCopy()

	mutating, err := c.source.ListWebhooksFor(ctx, resource.TypeName, resource.TypeVersion, op, types.WebhookMutating)
	if err != nil {
		return nil, errors.Wrap(err, "error listing mutating webhooks")
	}
	for _, wh := range mutating {
		snapshot := *resource
		snapshot.Spec = spec
		resp, err := c.call(ctx, wh, op, &snapshot, old)
		if err != nil {
			if handled := c.handleFailure(wh, op, err); handled != nil {
				return nil, handled
			}
			continue
		}
		if !resp.Allowed {
			metrics.AdmissionDenials.WithLabelValues(string(op)).Inc()
			return nil, types.NewAdmissionDeniedError("admission denied by webhook %s: %s", wh.Name, resp.Message)
		}
		if len(resp.Patches) > 0 {
			if op == types.OperationDelete {
				c.log.V(1).Info("discarding patches on delete", "webhook", wh.Name, "patches", len(resp.Patches))
				continue
			}
			spec, err = applyPatches(spec, resp.Patches, wh.Name, c.log)
			if err != nil {
				metrics.AdmissionDenials.WithLabelValues(string(op)).Inc()
				return nil, err
			}
			c.log.V(1).Info("spec mutated by webhook", "webhook", wh.Name, "patches", len(resp.Patches))
		}
	}

	validating, err := c.source.ListWebhooksFor(ctx, resource.TypeName, resource.TypeVersion, op, types.WebhookValidating)
	if err != nil {
		return nil, errors.Wrap(err, "error listing validating webhooks")
	}
	for _, wh := range validating {
		snapshot := *resource
		snapshot.Spec = spec
		resp, err := c.call(ctx, wh, op, &snapshot, old)
		if err != nil {
			if handled := c.handleFailure(wh, op, err); handled != nil {
				return nil, handled
			}
			continue
		}
		if !resp.Allowed {
			metrics.AdmissionDenials.WithLabelValues(string(op)).Inc()
			return nil, types.NewAdmissionDeniedError("admission denied by webhook %s: %s", wh.Name, resp.Message)
		}
	}

	return spec, nil
}

// handleFailure applies the webhook's failure policy to a transport error.
// A non-nil return denies the write.
func (c *Chain) handleFailure(wh types.AdmissionWebhook, op types.Operation, err error) error {
	metrics.WebhookFailures.WithLabelValues(wh.Name, string(wh.FailurePolicy)).Inc()
	if wh.FailurePolicy == types.FailurePolicyIgnore {
		c.log.Info("ignoring webhook failure", "webhook", wh.Name, "error", err.Error())
		return nil
	}
	metrics.AdmissionDenials.WithLabelValues(string(op)).Inc()
	return types.NewAdmissionDeniedError("webhook %s failed: %s", wh.Name, err)
}

func (c *Chain) call(ctx context.Context, wh types.AdmissionWebhook, op types.Operation, resource *types.Resource, old *types.Resource) (*response, error) {
	timeout := defaultWebhookTimeout
	if wh.TimeoutSeconds > 0 {
		timeout = time.Duration(wh.TimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(request{Operation: op, Resource: resource, OldResource: old})
	if err != nil {
		return nil, errors.Wrap(err, "error encoding webhook request")
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "error building webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("webhook returned status %d", httpResp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "error reading webhook response")
	}
	resp := &response{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, errors.Wrap(err, "error decoding webhook response")
	}
	return resp, nil
}
