// Package ingest turns external watch-history sources into normalized
// storage.WatchEvent records and feeds them to the repository.
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/runnerr0/watchvault/internal/storage"
)

// ErrNoVideoID is returned when a URL does not carry a recognizable video id.
var ErrNoVideoID = errors.New("no video id in url")

// watchHosts are the hosts serving /watch, /embed, /shorts and /live links.
var watchHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// pathPrefixes are the path shapes that carry the id as the next segment.
var pathPrefixes = []string{"/embed/", "/shorts/", "/live/"}

// ExtractVideoID returns the 11-character video id from a watch, short,
// embed, shorts or live link. Anything else is ErrNoVideoID.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrNoVideoID)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoVideoID, err)
	}
	host := strings.ToLower(u.Hostname())

	var id string
	switch {
	case host == "youtu.be":
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	case watchHosts[host]:
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range pathPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrNoVideoID, host)
	}

	if !storage.ValidVideoID(id) {
		return "", fmt.Errorf("%w: %q", ErrNoVideoID, raw)
	}
	return id, nil
}

// WatchURL returns the canonical watch link for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ThumbnailURL returns the high-quality thumbnail link for a video id.
func ThumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}
