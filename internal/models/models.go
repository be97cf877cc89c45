// package models defines the data model for the playlist migration engine
package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/plx/internal/shared"
	"golang.org/x/oauth2"
)

// Provider identifies a music streaming service.
type Provider string

const (
	Tidal   Provider = "tidal"
	Spotify Provider = "spotify"
	Deezer  Provider = "deezer"
)

// Providers lists every supported [Provider] in display order.
var Providers = []Provider{Tidal, Spotify, Deezer}

// AuthKind is the credential modality a provider expects.
type AuthKind int

const (
	// AuthBearer is an OAuth2 access token sent as "Authorization: Bearer".
	AuthBearer AuthKind = iota
	// AuthSession is an opaque long-lived session secret (Deezer's ARL) sent through a proxy.
	AuthSession
)

// ParseProvider converts a user supplied name to a [Provider], ignoring case.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnsupportedProvider, s)
}

func (p Provider) String() string { return string(p) }

// DisplayName returns the provider's brand name.
func (p Provider) DisplayName() string {
	switch p {
	case Tidal:
		return "TIDAL"
	case Spotify:
		return "Spotify"
	case Deezer:
		return "Deezer"
	default:
		return string(p)
	}
}

// AuthKind reports which credential field a provider reads.
func (p Provider) AuthKind() AuthKind {
	if p == Deezer {
		return AuthSession
	}
	return AuthBearer
}

// Credential is supplied by the caller for one migration call and never refreshed or stored by the engine.
//
// Bearer providers read Token; session providers read ARL.
type Credential struct {
	Token *oauth2.Token
	ARL   string
}

// BearerCredential builds a [Credential] from a raw access token with no known expiry.
func BearerCredential(accessToken string) Credential {
	if accessToken == "" {
		return Credential{}
	}
	return Credential{Token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}}
}

// SessionCredential builds a [Credential] from a session secret.
func SessionCredential(arl string) Credential {
	return Credential{ARL: arl}
}

// Validate checks that c carries a usable secret for p.
// An expired bearer token is rejected; no refresh is attempted.
func (c Credential) Validate(p Provider) error {
	switch p.AuthKind() {
	case AuthSession:
		if strings.TrimSpace(c.ARL) == "" {
			return fmt.Errorf("%w: %s requires a session secret", shared.ErrMissingCredentials, p)
		}
	default:
		if c.Token == nil || c.Token.AccessToken == "" {
			return fmt.Errorf("%w: %s requires an access token", shared.ErrMissingCredentials, p)
		}
		if !c.Token.Valid() {
			return fmt.Errorf("%w: %s token expired at %s", shared.ErrTokenExpired, p, c.Token.Expiry.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// Playlist is a snapshot of a playlist's metadata.
type Playlist struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TrackCount  int      `json:"track_count"`
	Service     Provider `json:"service"`
}

// SourceTrack is one entry of a playlist on its own service.
// Title, Artist and Album are best effort: some providers only return identifiers.
type SourceTrack struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// DisplayName renders the track for humans, falling back to its identifier.
func (t SourceTrack) DisplayName() string {
	switch {
	case t.Title == "":
		return fmt.Sprintf("Unknown Track (%s)", t.ID)
	case t.Artist == "":
		return t.Title
	default:
		return t.Artist + " - " + t.Title
	}
}

// TrackMapping links a track on one service to its identifiers on the others.
//
// A nil *TrackMapping and a mapping without the wanted target are both "no mapping".
type TrackMapping struct {
	SourceService Provider            `json:"source_service"`
	SourceID      string              `json:"source_id"`
	Title         string              `json:"title,omitempty"`
	Artist        string              `json:"artist,omitempty"`
	Album         string              `json:"album,omitempty"`
	Targets       map[Provider]string `json:"targets"`
}

// TargetID returns the identifier on target, or "" when the mapping has none.
func (m *TrackMapping) TargetID(target Provider) string {
	if m == nil {
		return ""
	}
	return m.Targets[target]
}
