// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const anthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens applies when the request carries no budget; the
// messages API rejects requests without max_tokens.
const anthropicDefaultMaxTokens = 1024

// AnthropicAdapter executes requests against the Anthropic messages API.
type AnthropicAdapter struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewAnthropicAdapter creates an adapter bound to the Anthropic messages API.
func NewAnthropicAdapter(name, baseURL, apiKey, defaultModel string) *AnthropicAdapter {
	return &AnthropicAdapter{
		name:         name,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       newHTTPClient(),
	}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) buildPayload(req Request, stream bool) []byte {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "model", model)
	payload, _ = sjson.SetBytes(payload, "max_tokens", maxTokens)
	if req.System != "" {
		payload, _ = sjson.SetBytes(payload, "system", req.System)
	}
	for _, turn := range req.Turns {
		payload, _ = sjson.SetBytes(payload, "messages.-1", map[string]string{"role": turn.Role, "content": turn.Content})
	}
	if stream {
		payload, _ = sjson.SetBytes(payload, "stream", true)
	}
	return payload
}

func (a *AnthropicAdapter) newRequest(ctx context.Context, payload []byte, stream bool) (*http.Request, error) {
	url := a.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("User-Agent", "safegate")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}
	return httpReq, nil
}

// Generate implements Adapter.
func (a *AnthropicAdapter) Generate(ctx context.Context, req Request) (string, error) {
	httpReq, err := a.newRequest(ctx, a.buildPayload(req, false), false)
	if err != nil {
		return "", transportError(a.name, err)
	}
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError(a.name, err)
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("anthropic adapter: close response body error: %v", errClose)
		}
	}()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(httpResp.Body)
		return "", statusError(a.name, httpResp.StatusCode, b)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", transportError(a.name, err)
	}

	// Concatenate text blocks; tool-use blocks are not requested here.
	var sb strings.Builder
	for _, block := range gjson.GetBytes(body, "content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", noContentError(a.name)
	}
	return sb.String(), nil
}

// GenerateStream implements Adapter. Anthropic streams SSE events; text
// arrives in content_block_delta events as text_delta payloads.
func (a *AnthropicAdapter) GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error) {
	httpReq, err := a.newRequest(ctx, a.buildPayload(req, true), true)
	if err != nil {
		return nil, transportError(a.name, err)
	}
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, transportError(a.name, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(httpResp.Body)
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("anthropic adapter: close response body error: %v", errClose)
		}
		return nil, statusError(a.name, httpResp.StatusCode, b)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer func() {
			if errClose := httpResp.Body.Close(); errClose != nil {
				log.Errorf("anthropic adapter: close response body error: %v", errClose)
			}
		}()
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(nil, 1_048_576) // 1MB line cap
		for scanner.Scan() {
			line := scanner.Bytes()
			data, ok := bytes.CutPrefix(line, []byte("data: "))
			if !ok {
				continue
			}
			switch gjson.GetBytes(data, "type").String() {
			case "content_block_delta":
				delta := gjson.GetBytes(data, "delta.text").String()
				if delta == "" {
					continue
				}
				select {
				case out <- Fragment{Text: delta}:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			case "error":
				fragment := Fragment{Err: &Error{
					Provider: a.name,
					Class:    ErrClassTransient,
					Message:  gjson.GetBytes(data, "error.message").String(),
				}}
				select {
				case out <- fragment:
				case <-ctx.Done():
				}
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			out <- Fragment{Err: transportError(a.name, errScan)}
		}
	}()
	return out, nil
}
