package mapping

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestProviderIDs(t *testing.T) {
	tc := []struct {
		name string
		json string
		want ProviderIDs
	}{
		{
			name: "list form",
			json: `[{"provider":"tidal","providerId":"77646168"},{"provider":"deezer","providerId":3135553},{"provider":"napster","providerId":"x"}]`,
			want: ProviderIDs{models.Tidal: "77646168", models.Deezer: "3135553"},
		},
		{
			name: "object form",
			json: `{"deezerTrackId":"3135553","spotifyTrackId":"0DiWol3AO6WpXZgp0goxAV","tidalTrackId":""}`,
			want: ProviderIDs{models.Deezer: "3135553", models.Spotify: "0DiWol3AO6WpXZgp0goxAV"},
		},
		{name: "null", json: `null`, want: ProviderIDs{}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			var got ProviderIDs
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("rejects scalars", func(t *testing.T) {
		var got ProviderIDs
		if err := json.Unmarshal([]byte(`"tidal"`), &got); err == nil {
			t.Error("expected error for string providers")
		}
	})
}

func TestRecordMapping(t *testing.T) {
	var rec Record
	body := `{"id":"t-1","title":"One More Time","artist":{"id":27,"name":"Daft Punk"},"album":{"id":302127,"title":"Discovery"},
		"providers":[{"provider":"tidal","providerId":"77646168"},{"provider":"deezer","providerId":"3135553"}]}`
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	got := rec.Mapping(models.Tidal, "77646168")
	want := &models.TrackMapping{
		SourceService: models.Tidal,
		SourceID:      "77646168",
		Title:         "One More Time",
		Artist:        "Daft Punk",
		Album:         "Discovery",
		Targets:       map[models.Provider]string{models.Deezer: "3135553"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}

	stored := rec.TrackMapping()
	if len(stored.Targets) != 2 || stored.SourceService != "" {
		t.Errorf("stored form should carry every id as a target, got %+v", stored)
	}
}

func TestReadRecords(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		input := `[{"title":"A","providers":{"tidalTrackId":"1"}},{"title":"B","providers":[{"provider":"spotify","providerId":"2"}]}]`
		records, err := ReadRecords(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 || records[1].Providers[models.Spotify] != "2" {
			t.Errorf("unexpected records %+v", records)
		}
	})

	t.Run("Record Without Ids", func(t *testing.T) {
		_, err := ReadRecords(strings.NewReader(`[{"title":"lonely","providers":[]}]`))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := ReadRecords(strings.NewReader(`{"not":"an array"}`))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestNewRecord(t *testing.T) {
	m := &models.TrackMapping{
		SourceService: models.Tidal,
		SourceID:      "77646168",
		Title:         "Sledgehammer",
		Artist:        "Peter Gabriel",
		Album:         "So",
		Targets:       map[models.Provider]string{models.Deezer: "3135553", models.Spotify: "0DiWol3AO6WpXZgp0goxAV"},
	}

	data, err := json.Marshal(NewRecord(m))
	if err != nil {
		t.Fatalf("failed to encode record: %v", err)
	}

	wantProviders := `"providers":[{"provider":"tidal","providerId":"77646168"},{"provider":"spotify","providerId":"0DiWol3AO6WpXZgp0goxAV"},{"provider":"deezer","providerId":"3135553"}]`
	if !strings.Contains(string(data), wantProviders) {
		t.Errorf("providers not in list form, got %s", data)
	}

	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if diff := cmp.Diff(m, decoded.Mapping(models.Tidal, "77646168")); diff != "" {
		t.Errorf("published record does not describe the mapping (-want +got):\n%s", diff)
	}
}
