package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/repositories"
	"github.com/desertthunder/plx/internal/shared"
	"golang.org/x/time/rate"
)

// Source performs a single keyed lookup. A nil mapping with a nil error means the track is unknown.
type Source interface {
	Lookup(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error)

func (f SourceFunc) Lookup(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
	return f(ctx, service, trackID)
}

// HTTPSource reads mapping records published as static JSON files.
type HTTPSource struct {
	baseURL string
	client  *httpclient.Client
	limiter *rate.Limiter
}

// NewHTTPSource creates an [HTTPSource]. requestsPerSecond <= 0 disables pacing.
func NewHTTPSource(baseURL string, client *httpclient.Client, requestsPerSecond float64) *HTTPSource {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: limiter,
	}
}

// Lookup fetches {base}/api/providers/{service}/tracks/{id}.json. A 404 is "unknown"; any other failure is an error.
func (s *HTTPSource) Lookup(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := fmt.Sprintf("%s/api/providers/%s/tracks/%s.json", s.baseURL, url.PathEscape(string(service)), url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mapping request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &shared.ProviderError{Service: "mapping", Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode mapping record for %s/%s: %w", service, trackID, err)
	}
	return rec.Mapping(service, trackID), nil
}

// StoreSource reads the local SQLite mapping store.
type StoreSource struct {
	repo *repositories.MappingRepository
}

// NewStoreSource creates a [StoreSource] backed by repo.
func NewStoreSource(repo *repositories.MappingRepository) *StoreSource {
	return &StoreSource{repo: repo}
}

// Lookup implements [Source].
func (s *StoreSource) Lookup(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
	return s.repo.Get(ctx, service, trackID)
}
