package entities

import (
	"fmt"
	"github.com/google/uuid"
	"regexp"
)

var mediaKeyPattern = regexp.MustCompile(`(?i)^([a-f\d]{8}(?:-[a-f\d]{4}){3}-[a-f\d]{12})_([^\s\\/]+)$`)

// MediaKey identifies an uploaded object. Its canonical form is "{id}_{name}".
type MediaKey struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ParseError reports an object key that does not follow the "{uuid}_{name}"
// convention. It never becomes valid on retry.
type ParseError struct {
	Key string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("key %q does not conform to pattern %s", e.Key, mediaKeyPattern)
}

func ParseMediaKey(raw string) (MediaKey, error) {
	groups := mediaKeyPattern.FindStringSubmatch(raw)
	if groups == nil {
		return MediaKey{}, &ParseError{Key: raw}
	}

	id, err := uuid.Parse(groups[1])
	if err != nil {
		return MediaKey{}, &ParseError{Key: raw}
	}

	return MediaKey{ID: id, Name: groups[2]}, nil
}

func (k MediaKey) String() string {
	return fmt.Sprintf("%s_%s", k.ID, k.Name)
}
