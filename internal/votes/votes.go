// Package votes derives vote tallies from annotation tag lists and plans the
// tag mutations that cast, switch, or retract a vote.
//
// Votes are encoded inside the ordinary tag collection under the reserved
// "vote:" namespace. Two encodings exist in persisted data and both are
// readable:
//
//	inline marker  vote:{like|dislike}:{userid}:{unix-seconds}  on the target itself
//	reply marker   vote:like / vote:dislike                     on a reply annotation
//
// New votes are written with the inline marker unless the service is
// configured for the legacy reply scheme.
package votes

import (
	"strconv"
	"strings"
	"time"

	"marginalia/api/internal/store"
)

type Direction string

const (
	Like    Direction = "like"
	Dislike Direction = "dislike"
	None    Direction = "none"
)

// State is the derived, ephemeral vote tally for one annotation as seen by
// one viewer. It is recomputed from a snapshot on every read.
type State struct {
	Likes      int       `json:"likes"`
	Dislikes   int       `json:"dislikes"`
	ViewerVote Direction `json:"viewerVote"`
}

const (
	markerPrefix = "vote:"
	replyLike    = "vote:like"
	replyDislike = "vote:dislike"
)

// marker is a parsed inline vote tag.
type marker struct {
	direction Direction
	userID    string
	castAt    int64
}

// parseMarker parses an inline marker tag: a known direction, a non-empty
// userid, and a numeric timestamp. Userids may themselves contain colons
// (acct:bob@example.com), so the timestamp is whatever follows the last colon
// and the userid is everything between it and the direction. Anything else is
// not a marker, including malformed tags under the reserved prefix; those are
// ignored rather than miscounted.
func parseMarker(tag string) (marker, bool) {
	rest, ok := strings.CutPrefix(tag, markerPrefix)
	if !ok {
		return marker{}, false
	}
	dir, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return marker{}, false
	}
	direction := Direction(dir)
	if direction != Like && direction != Dislike {
		return marker{}, false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return marker{}, false
	}
	castAt, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return marker{}, false
	}
	return marker{direction: direction, userID: rest[:idx], castAt: castAt}, true
}

// NewMarker formats an inline marker tag for a fresh vote.
func NewMarker(direction Direction, userID string, at time.Time) string {
	return markerPrefix + string(direction) + ":" + userID + ":" + strconv.FormatInt(at.Unix(), 10)
}

// IsMarker reports whether the tag is a well-formed inline vote marker.
func IsMarker(tag string) bool {
	_, ok := parseMarker(tag)
	return ok
}

// IsReplyMarker reports whether the tag is a reply-scheme vote marker.
func IsReplyMarker(tag string) bool {
	return tag == replyLike || tag == replyDislike
}

// Reserved reports whether a tag sits in the vote namespace. User-supplied
// tags carrying the prefix are rejected on write so a topical tag can never
// be misread as a vote.
func Reserved(tag string) bool {
	return tag == markerPrefix || strings.HasPrefix(tag, markerPrefix)
}

// Strip returns the tag list with every vote-namespace tag removed. Used when
// indexing and when rendering user-visible tags.
func Strip(tags []string) []string {
	kept := make([]string, 0, len(tags))
	for _, tag := range tags {
		if Reserved(tag) {
			continue
		}
		kept = append(kept, tag)
	}
	return kept
}

// HasMarker reports whether any tag in the list encodes a vote, in either
// scheme.
func HasMarker(tags []string) bool {
	for _, tag := range tags {
		if IsMarker(tag) || IsReplyMarker(tag) {
			return true
		}
	}
	return false
}

// EligibleTarget reports whether an annotation may receive votes: replies and
// reply-scheme vote carriers are not votable. Inline markers accumulated by
// earlier votes do not disqualify a target, or toggling would be impossible.
func EligibleTarget(a store.Annotation) bool {
	if a.IsReply() {
		return false
	}
	for _, tag := range a.Tags {
		if IsReplyMarker(tag) {
			return false
		}
	}
	return true
}

// isVoteReply reports whether candidate is a reply-scheme vote on parentID,
// and if so which direction it carries.
func isVoteReply(candidate store.Annotation, parentID string) (Direction, bool) {
	if parentID == "" || candidate.ParentID() != parentID {
		return None, false
	}
	for _, tag := range candidate.Tags {
		switch tag {
		case replyLike:
			return Like, true
		case replyDislike:
			return Dislike, true
		}
	}
	return None, false
}

// Derive computes the vote state for target as seen by viewerID. Inline
// markers on the target's own tags and legacy vote-replies found among
// candidates both contribute. The viewer's own vote is taken from the first
// matching inline marker in tag order; on a duplicate-voter invariant
// violation the first marker wins and the rest still count toward totals.
// Pure: no I/O, deterministic for identical inputs.
func Derive(target store.Annotation, candidates []store.Annotation, viewerID string) State {
	state := State{ViewerVote: None}

	for _, tag := range target.Tags {
		m, ok := parseMarker(tag)
		if !ok {
			continue
		}
		if m.direction == Like {
			state.Likes++
		} else {
			state.Dislikes++
		}
		if viewerID != "" && m.userID == viewerID && state.ViewerVote == None {
			state.ViewerVote = m.direction
		}
	}

	for _, candidate := range candidates {
		direction, ok := isVoteReply(candidate, target.ID)
		if !ok {
			continue
		}
		if direction == Like {
			state.Likes++
		} else {
			state.Dislikes++
		}
		if viewerID != "" && candidate.UserID == viewerID && state.ViewerVote == None {
			state.ViewerVote = direction
		}
	}

	return state
}
