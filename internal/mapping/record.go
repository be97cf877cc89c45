package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// Record is a mapping record as published by the mapping store and accepted by "plx mapping import".
type Record struct {
	Title  string `json:"title"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
	Providers ProviderIDs `json:"providers"`
}

// ProviderIDs maps each provider to its track identifier.
//
// It decodes both [{"provider":"tidal","providerId":"1"}] and {"tidalTrackId":"1"} forms;
// identifiers may be JSON strings or numbers.
type ProviderIDs map[models.Provider]string

func (p *ProviderIDs) UnmarshalJSON(data []byte) error {
	ids := ProviderIDs{}
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var entries []struct {
			Provider   string          `json:"provider"`
			ProviderID json.RawMessage `json:"providerId"`
		}
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			provider, err := models.ParseProvider(e.Provider)
			if err != nil {
				continue
			}
			if id := rawID(e.ProviderID); id != "" {
				ids[provider] = id
			}
		}
	case trimmed[0] == '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		for key, raw := range fields {
			provider, err := models.ParseProvider(strings.TrimSuffix(key, "TrackId"))
			if err != nil {
				continue
			}
			if id := rawID(raw); id != "" {
				ids[provider] = id
			}
		}
	default:
		return fmt.Errorf("providers must be an array or an object, got %s", trimmed[:1])
	}

	*p = ids
	return nil
}

// MarshalJSON writes the list form in [models.Providers] order.
func (p ProviderIDs) MarshalJSON() ([]byte, error) {
	type entry struct {
		Provider   models.Provider `json:"provider"`
		ProviderID string          `json:"providerId"`
	}
	entries := make([]entry, 0, len(p))
	for _, provider := range models.Providers {
		if id, ok := p[provider]; ok {
			entries = append(entries, entry{Provider: provider, ProviderID: id})
		}
	}
	return json.Marshal(entries)
}

// rawID renders a JSON string or number as an identifier.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// NewRecord builds the published form of m, listing the source id alongside its targets.
func NewRecord(m *models.TrackMapping) Record {
	r := Record{Title: m.Title, Providers: make(ProviderIDs, len(m.Targets)+1)}
	r.Artist.Name = m.Artist
	r.Album.Title = m.Album
	for p, id := range m.Targets {
		r.Providers[p] = id
	}
	if m.SourceService != "" && m.SourceID != "" {
		r.Providers[m.SourceService] = m.SourceID
	}
	return r
}

// Mapping projects r onto a [models.TrackMapping] seen from service. The source id is never a target.
func (r Record) Mapping(service models.Provider, trackID string) *models.TrackMapping {
	m := &models.TrackMapping{
		SourceService: service,
		SourceID:      trackID,
		Title:         r.Title,
		Artist:        r.Artist.Name,
		Album:         r.Album.Title,
		Targets:       make(map[models.Provider]string, len(r.Providers)),
	}
	for p, id := range r.Providers {
		if p != service {
			m.Targets[p] = id
		}
	}
	return m
}

// TrackMapping returns r with every provider id as a target, the form stored by the repository.
func (r Record) TrackMapping() models.TrackMapping {
	return *r.Mapping("", "")
}

// ReadRecords decodes a JSON array of [Record] values. Records without any provider id are rejected.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: failed to decode mapping records: %v", shared.ErrInvalidArgument, err)
	}
	for i, rec := range records {
		if len(rec.Providers) == 0 {
			return nil, fmt.Errorf("%w: record %d (%q) has no provider ids", shared.ErrInvalidArgument, i, rec.Title)
		}
	}
	return records, nil
}
