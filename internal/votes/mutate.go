package votes

import (
	"time"

	"marginalia/api/internal/store"
)

// Scheme selects the encoding used when writing new votes. Reads always
// understand both.
type Scheme string

const (
	SchemeInline Scheme = "inline"
	SchemeReply  Scheme = "reply"
)

// ParseScheme maps a config string to a Scheme, defaulting to inline.
func ParseScheme(value string) Scheme {
	if Scheme(value) == SchemeReply {
		return SchemeReply
	}
	return SchemeInline
}

type OpKind string

const (
	OpUpdateTags  OpKind = "update-tags"
	OpCreateReply OpKind = "create-reply"
	OpDeleteReply OpKind = "delete-reply"
)

// Op is one persistence action. Exactly one payload field is meaningful for
// each kind: Tags for update-tags (full replacement list for the target),
// Reply for create-reply, DeleteID for delete-reply.
type Op struct {
	Kind     OpKind
	Tags     []string
	Reply    store.Annotation
	DeleteID string
}

// Plan is an ordered sequence of persistence actions realizing one vote
// request. An empty plan is a no-op. When a switch needs a delete and a
// create, the delete is sequenced first so no snapshot ever shows the viewer
// with two live votes.
type Plan struct {
	Ops []Op
}

// Noop reports whether the plan changes nothing.
func (p Plan) Noop() bool {
	return len(p.Ops) == 0
}

// Mutator plans vote mutations. It never performs them: the caller hands
// each op to the persistence layer and, on failure, discards the plan without
// touching cached state.
type Mutator struct {
	Scheme Scheme
}

// Apply computes the plan for viewerID requesting direction on target, given
// the state previously derived from the same snapshot. Candidates are the
// annotations the state was derived from; they locate legacy vote-replies
// that need deleting. Callers must resolve authentication first: Apply
// assumes a signed-in viewer.
func (m Mutator) Apply(target store.Annotation, candidates []store.Annotation, state State, direction Direction, viewerID string, at time.Time) Plan {
	if direction != Like && direction != Dislike {
		return Plan{}
	}
	if viewerID == "" || !EligibleTarget(target) {
		return Plan{}
	}

	// Toggle: voting the current direction retracts the vote.
	if state.ViewerVote == direction {
		return m.retract(target, candidates, viewerID)
	}

	// Switch: retract the opposite vote, then cast. A pure inline switch
	// collapses to a single tag-list replacement.
	if state.ViewerVote != None {
		retraction := m.retract(target, candidates, viewerID)
		if len(retraction.Ops) == 1 && retraction.Ops[0].Kind == OpUpdateTags && m.Scheme == SchemeInline {
			return Plan{Ops: []Op{{
				Kind: OpUpdateTags,
				Tags: append(retraction.Ops[0].Tags, NewMarker(direction, viewerID, at)),
			}}}
		}
		cast := m.cast(target, direction, viewerID, at)
		return Plan{Ops: append(retraction.Ops, cast.Ops...)}
	}

	// Fresh vote.
	return m.cast(target, direction, viewerID, at)
}

// retract removes every live vote the viewer holds on target, across both
// encodings. Duplicate markers left by past invariant violations are cleaned
// up in the same pass.
func (m Mutator) retract(target store.Annotation, candidates []store.Annotation, viewerID string) Plan {
	var ops []Op

	if tags, removed := withoutViewerMarkers(target.Tags, viewerID); removed {
		ops = append(ops, Op{Kind: OpUpdateTags, Tags: tags})
	}

	for _, candidate := range candidates {
		if candidate.UserID != viewerID {
			continue
		}
		if _, ok := isVoteReply(candidate, target.ID); ok {
			ops = append(ops, Op{Kind: OpDeleteReply, DeleteID: candidate.ID})
		}
	}

	return Plan{Ops: ops}
}

// cast adds a new vote in the configured write scheme without touching any
// other tag or annotation.
func (m Mutator) cast(target store.Annotation, direction Direction, viewerID string, at time.Time) Plan {
	if m.Scheme == SchemeReply {
		return Plan{Ops: []Op{{Kind: OpCreateReply, Reply: NewVoteReply(target, direction, viewerID, at)}}}
	}
	tags := append(append([]string(nil), target.Tags...), NewMarker(direction, viewerID, at))
	return Plan{Ops: []Op{{Kind: OpUpdateTags, Tags: tags}}}
}

// NewVoteReply synthesizes the reply-scheme vote annotation for target. The
// group, URI, and permissions context is copied from the parent; the voter is
// the reply's author, not encoded in the tag.
func NewVoteReply(target store.Annotation, direction Direction, viewerID string, at time.Time) store.Annotation {
	tag := replyLike
	if direction == Dislike {
		tag = replyDislike
	}
	return store.Annotation{
		UserID:  viewerID,
		GroupID: target.GroupID,
		URI:     target.URI,
		Tags:    []string{tag},
		Refs:    append(append([]string(nil), target.Refs...), target.ID),
		Permissions: store.Permissions{
			Read:   append([]string(nil), target.Permissions.Read...),
			Update: []string{viewerID},
			Delete: []string{viewerID},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// withoutViewerMarkers strips the viewer's inline markers from tags,
// reporting whether anything was removed.
func withoutViewerMarkers(tags []string, viewerID string) ([]string, bool) {
	kept := make([]string, 0, len(tags))
	removed := false
	for _, tag := range tags {
		if m, ok := parseMarker(tag); ok && m.userID == viewerID {
			removed = true
			continue
		}
		kept = append(kept, tag)
	}
	return kept, removed
}
