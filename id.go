package strata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ChildID builds the composite id of the j-th child of a parent.
func ChildID(parentID string, j int) string {
	return parentID + ":" + strconv.Itoa(j)
}

// ParseChildID splits a child id into its parent id and child index.
func ParseChildID(id string) (parentID string, index int, err error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed child id %q", id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed child id %q", id)
	}
	return id[:i], index, nil
}
