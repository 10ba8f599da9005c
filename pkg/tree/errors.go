package tree

import (
	"fmt"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// PartialDeleteError reports a recursive deletion that removed some but
// not all of a subtree.
//
// The namespace is never left dangling: every item listed in Remaining
// still has a valid record (and, for files, its blob where the blob
// delete failed), so re-issuing the deletion makes further progress.
// Items not listed are gone for good.
type PartialDeleteError struct {
	// Remaining lists the items still present after the attempt,
	// the subtree root included when descendants survived.
	Remaining []metadata.ItemRef

	// Causes maps each failed item to the error that blocked it.
	// Items retained only to keep the tree rooted (ancestors of a
	// failed item) have no entry.
	Causes map[metadata.ItemRef]error
}

// Error implements the error interface.
func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("recursive delete incomplete: %d items remaining (%d failed)", len(e.Remaining), len(e.Causes))
}
