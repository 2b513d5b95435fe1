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

// OpenAIAdapter executes requests against any OpenAI-compatible
// chat-completions endpoint (OpenAI itself, or a compatible gateway).
type OpenAIAdapter struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewOpenAIAdapter creates an adapter bound to one OpenAI-compatible backend.
// name is the provider key used in logs and error classification.
func NewOpenAIAdapter(name, baseURL, apiKey, defaultModel string) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:         name,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       newHTTPClient(),
	}
}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string { return a.name }

// buildPayload assembles the chat-completions body for req.
func (a *OpenAIAdapter) buildPayload(req Request, stream bool) []byte {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "model", model)
	if req.System != "" {
		payload, _ = sjson.SetBytes(payload, "messages.-1", map[string]string{"role": "system", "content": req.System})
	}
	for _, turn := range req.Turns {
		payload, _ = sjson.SetBytes(payload, "messages.-1", map[string]string{"role": turn.Role, "content": turn.Content})
	}
	if req.MaxTokens > 0 {
		payload, _ = sjson.SetBytes(payload, "max_tokens", req.MaxTokens)
	}
	if stream {
		payload, _ = sjson.SetBytes(payload, "stream", true)
	}
	return payload
}

func (a *OpenAIAdapter) newRequest(ctx context.Context, payload []byte, stream bool) (*http.Request, error) {
	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	httpReq.Header.Set("User-Agent", "safegate")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}
	return httpReq, nil
}

// Generate implements Adapter.
func (a *OpenAIAdapter) Generate(ctx context.Context, req Request) (string, error) {
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
			log.Errorf("openai adapter: close response body error: %v", errClose)
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
	text := gjson.GetBytes(body, "choices.0.message.content").String()
	if strings.TrimSpace(text) == "" {
		return "", noContentError(a.name)
	}
	return text, nil
}

// GenerateStream implements Adapter. OpenAI-compatible streams are SSE lines
// prefixed with "data: ", terminated by a "[DONE]" sentinel.
func (a *OpenAIAdapter) GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error) {
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
			log.Errorf("openai adapter: close response body error: %v", errClose)
		}
		return nil, statusError(a.name, httpResp.StatusCode, b)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer func() {
			if errClose := httpResp.Body.Close(); errClose != nil {
				log.Errorf("openai adapter: close response body error: %v", errClose)
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
			if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
				return
			}
			delta := gjson.GetBytes(data, "choices.0.delta.content").String()
			if delta == "" {
				continue
			}
			select {
			case out <- Fragment{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			out <- Fragment{Err: transportError(a.name, errScan)}
		}
	}()
	return out, nil
}
