package domain

import (
	"fmt"
	"strings"
)

// JoinAmbiguityError reports a violated tie-break invariant: more than one
// region candidate survived for a single glacier and family. It aborts the
// refresh that produced it; the materializer never picks a survivor silently.
type JoinAmbiguityError struct {
	GlacierID string
	Family    string
	RegionIDs []string
}

func (e *JoinAmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous region join for glacier %s in family %q: candidates [%s]",
		e.GlacierID, e.Family, strings.Join(e.RegionIDs, ", "))
}

// DuplicateGlacierError reports two input records sharing one glacier ID.
// The canonical row set is keyed on glacier ID, so this is a source-data
// integrity failure rather than something to merge over.
type DuplicateGlacierError struct {
	GlacierID string
}

func (e *DuplicateGlacierError) Error() string {
	return fmt.Sprintf("duplicate glacier id %s in source table", e.GlacierID)
}

// EmptyInputError reports an empty or unreadable source snapshot. The refresh
// aborts before computing anything so a truncated source can never publish an
// empty canonical table over a good one.
type EmptyInputError struct {
	Source string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("source %q returned no rows", e.Source)
}
