// Package sharelink encodes a sender's channel-addressable identifier into the link
// handed to a receiver, and extracts it again on the receiving side.
package sharelink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// QueryParam is the single query parameter carrying the identifier.
const QueryParam = "peerId"

var (
	// ErrMissingPeerID indicates the link has no peerId parameter, or an empty one.
	ErrMissingPeerID = errors.New("share link has no peerId")
	// ErrInvalidOrigin indicates the origin is not an absolute URL.
	ErrInvalidOrigin = errors.New("invalid origin")
)

// Build returns <origin>/?peerId=<peerID> with the identifier URL-escaped.
// Any path or query already present on origin is dropped.
func Build(origin, peerID string) (string, error) {
	if peerID == "" {
		return "", ErrMissingPeerID
	}
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	q := url.Values{}
	q.Set(QueryParam, peerID)

	link := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return link.String(), nil
}

// Parse extracts the identifier from a share link. A bare query string
// ("?peerId=..." or "peerId=...") is accepted too.
func Parse(link string) (string, error) {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse share link: %w", err)
	}

	query := u.Query()
	if u.Scheme == "" && u.Host == "" && u.RawQuery == "" {
		if q, perr := url.ParseQuery(strings.TrimPrefix(link, "?")); perr == nil {
			query = q
		}
	}

	peerID := query.Get(QueryParam)
	if peerID == "" {
		return "", ErrMissingPeerID
	}
	return peerID, nil
}
