package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDList parses a comma-joined id list ("3,7, 12") as used by the
// attach/detach endpoints. An unparseable entry fails the whole request;
// partial application would undermine idempotence reasoning on the caller
// side.
func ParseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %q", ErrValidation, part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty id list", ErrValidation)
	}
	return ids, nil
}
