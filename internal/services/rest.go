package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// restClient performs JSON requests against one service through the retrying fetch client.
type restClient struct {
	service     models.Provider
	baseURL     string
	contentType string
	http        *httpclient.Client

	// inspect lets a service reject a 2xx body that carries an error payload.
	inspect func(body []byte) error
}

// resolve turns an endpoint or a "next" link into an absolute URL.
func (r *restClient) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimRight(r.baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// do sends the request and decodes a 2xx JSON body into result when result is non-nil.
// Any other status becomes a [shared.ProviderError].
func (r *restClient) do(ctx context.Context, method, endpoint string, query url.Values, header http.Header, body, result any) error {
	target := r.resolve(endpoint)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", r.service, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", r.service, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	ct := r.contentType
	if ct == "" {
		ct = "application/json"
	}
	req.Header.Set("Accept", ct)
	if body != nil {
		req.Header.Set("Content-Type", ct)
	}

	var resp *http.Response
	if r.inspect != nil {
		resp, err = r.http.DoInspect(ctx, req, r.inspect)
	} else {
		resp, err = r.http.Do(ctx, req)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &shared.NetworkError{Op: method, URL: req.URL.Redacted(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.ProviderError{Service: string(r.service), Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if r.inspect != nil {
		if err := r.inspect(data); err != nil {
			return err
		}
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &shared.ProviderError{
			Service: string(r.service),
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("malformed response: %v", err),
		}
	}
	return nil
}

const maxErrorMessage = 200

// errorMessage pulls a human readable message out of an error body, trimming anything long.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Errors  []struct {
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case len(payload.Errors) > 0 && payload.Errors[0].Detail != "":
			return payload.Errors[0].Detail
		case len(payload.Errors) > 0:
			return payload.Errors[0].Title
		}
		if s, ok := payload.Error.(string); ok {
			return s
		}
	}
	msg := strings.TrimSpace(string(body))
	if runes := []rune(msg); len(runes) > maxErrorMessage {
		msg = string(runes[:maxErrorMessage])
	}
	return msg
}

func bearerHeader(cred models.Credential) http.Header {
	h := http.Header{}
	if cred.Token != nil {
		h.Set("Authorization", "Bearer "+cred.Token.AccessToken)
	}
	return h
}
