package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPBinding describes one REST endpoint behind an operation name. Path
// segments of the form {param} are filled from call arguments; remaining
// arguments become query parameters for GET and the JSON body otherwise.
type HTTPBinding struct {
	Name   string
	Method string
	URL    string
	Params []string
}

// NewHTTPOperation builds an Operation backed by a REST endpoint. List
// responses following the platform's {"items": [...]} envelope are unwrapped
// to the inner array; every other JSON document is returned as a single
// mapping. Non-2xx responses surface as *APIError carrying the tracking id
// response header.
func NewHTTPOperation(client *http.Client, token string, binding HTTPBinding) Operation {
	if client == nil {
		client = http.DefaultClient
	}
	return Operation{
		Name:   binding.Name,
		Params: binding.Params,
		Invoke: func(ctx context.Context, args Args) (any, error) {
			return invokeHTTP(ctx, client, token, binding, args)
		},
	}
}

func invokeHTTP(ctx context.Context, client *http.Client, token string, binding HTTPBinding, args Args) (any, error) {
	endpoint, remaining := fillPath(binding.URL, args)
	method := strings.ToUpper(binding.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodGet {
		if len(remaining) > 0 {
			query := url.Values{}
			for name, value := range remaining {
				query.Set(name, fmt.Sprint(value))
			}
			endpoint += "?" + query.Encode()
		}
	} else if len(remaining) > 0 {
		payload, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("encode body for %s: %w", binding.Name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", binding.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			TrackingID: resp.Header.Get("Trackingid"),
			Message:    strings.TrimSpace(string(data)),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		var list []any
		if listErr := json.Unmarshal(data, &list); listErr == nil {
			return list, nil
		}
		return nil, fmt.Errorf("decode response for %s: %w", binding.Name, err)
	}
	if items, ok := doc["items"].([]any); ok && len(doc) == 1 {
		return items, nil
	}
	return doc, nil
}

// fillPath substitutes {param} segments from args and returns the resolved
// URL plus the arguments that were not consumed by the path.
func fillPath(template string, args Args) (string, Args) {
	remaining := make(Args, len(args))
	for k, v := range args {
		remaining[k] = v
	}
	out := template
	for name, value := range args {
		placeholder := "{" + name + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, url.PathEscape(fmt.Sprint(value)))
			delete(remaining, name)
		}
	}
	return out, remaining
}
