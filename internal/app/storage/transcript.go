package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"groupchat/internal/app/store"
)

// ArchivePrefix is the key prefix under which transcripts are stored.
const ArchivePrefix = "archives/"

// Transcript is the JSON document uploaded for a deleted room.
type Transcript struct {
	Room       string          `json:"room"`
	ArchivedAt time.Time       `json:"archivedAt"`
	Count      int             `json:"count"`
	Messages   []store.Message `json:"messages"`
}

// EncodeTranscript renders the transcript document for room.
func EncodeTranscript(room string, msgs []store.Message, at time.Time) ([]byte, error) {
	if msgs == nil {
		msgs = []store.Message{}
	}
	doc := Transcript{
		Room:       room,
		ArchivedAt: at.UTC(),
		Count:      len(msgs),
		Messages:   msgs,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// TranscriptKey builds a unique object key for a transcript of room.
func TranscriptKey(room string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.json",
		ArchivePrefix, sanitizeSegment(room), at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// IsTranscriptKey reports whether key looks like a key produced by TranscriptKey.
func IsTranscriptKey(key string) bool {
	return strings.HasPrefix(key, ArchivePrefix) &&
		strings.HasSuffix(key, ".json") &&
		!strings.Contains(key, "..")
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "room"
	}
	return b.String()
}
