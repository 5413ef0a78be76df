// Package authz decides which actions a viewer may take on an annotation.
package authz

import "marginalia/api/internal/store"

// WorldGroup is the principal that grants an action to everyone.
const WorldGroup = "group:__world__"

// Flags are the feature toggles the authorizer consults. They come from
// service configuration, never from the annotation.
type Flags struct {
	FlaggingEnabled bool
	SharingEnabled  bool
}

// Decision is the derived action set for one viewer on one annotation. It
// has no lifecycle of its own: compute, render, discard.
type Decision struct {
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
	CanFlag   bool `json:"canFlag"`
	CanShare  bool `json:"canShare"`
}

// Authorize computes the action set from the annotation's permission record,
// its author, the viewer, and the feature flags. A denial is an ordinary
// false, never an error; the function is total over well-formed inputs.
func Authorize(perms store.Permissions, authorID, viewerID string, flags Flags) Decision {
	return Decision{
		CanEdit:   permits(perms.Update, viewerID),
		CanDelete: permits(perms.Delete, viewerID),
		CanFlag:   flags.FlaggingEnabled && viewerID != "" && viewerID != authorID,
		CanShare:  flags.SharingEnabled,
	}
}

// permits reports whether viewerID appears in the principal list, or the
// action is world-granted. Anonymous viewers only ever match the world group.
func permits(principals []string, viewerID string) bool {
	for _, principal := range principals {
		if principal == WorldGroup {
			return true
		}
		if viewerID != "" && principal == viewerID {
			return true
		}
	}
	return false
}

// CanRead mirrors the persistence layer's read rule for completeness when
// filtering snapshots that were loaded without a viewer filter.
func CanRead(perms store.Permissions, viewerID string) bool {
	return permits(perms.Read, viewerID)
}
