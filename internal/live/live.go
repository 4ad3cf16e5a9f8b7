// Package live issues media credentials for channels of kind live.
// The media backend is LiveKit; rooms are created on demand when the
// first participant joins, so only token minting happens here.
package live

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/emberlink/matchwire-server/internal/core"
)

// JoinInfo contains what a client needs to join the media room backing
// a live channel.
type JoinInfo struct {
	URL      string
	Token    string
	Room     string
	Identity string
}

// Issuer mints LiveKit join tokens for live channels.
type Issuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// NewIssuer builds an issuer. Returns nil when the credentials are not
// configured; callers treat a nil issuer as "live media disabled".
func NewIssuer(apiKey, apiSecret, wsURL string) *Issuer {
	if apiKey == "" || apiSecret == "" {
		return nil
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       time.Hour,
	}
}

// JoinInfo creates join credentials for the identity on the media room
// backing channelID.
func (i *Issuer) JoinInfo(channelID string, identity core.Identity) (*JoinInfo, error) {
	room := "matchwire-live-" + channelID
	participant := fmt.Sprintf("user-%d", identity.UserID)

	at := auth.NewAccessToken(i.apiKey, i.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(participant).
		SetName(identity.Username).
		SetValidFor(i.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate join token: %w", err)
	}

	return &JoinInfo{
		URL:      i.wsURL,
		Token:    token,
		Room:     room,
		Identity: participant,
	}, nil
}
