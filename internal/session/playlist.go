// SPDX-License-Identifier: MIT

package session

import (
	"fmt"
	"math"
	"strings"
)

// Playlist renders the complete VOD media playlist of a session. It lists
// every segment whether or not it has been encoded yet; segment i is
// addressed by uri(i).
func (o *Orchestrator) Playlist(sessionID string, uri func(index int) string) (string, error) {
	s, err := o.Session(sessionID)
	if err != nil {
		return "", err
	}
	if s.IsDirectPlay() {
		return "", ErrDirectPlay
	}
	return renderPlaylist(s.Durations, uri), nil
}

func renderPlaylist(durations []float64, uri func(int) string) string {
	longest := 0.0
	for _, d := range durations {
		longest = math.Max(longest, d)
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(longest)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	for i, d := range durations {
		fmt.Fprintf(&b, "#EXTINF:%.6f,\n%s\n", d, uri(i))
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}
