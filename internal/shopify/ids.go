package shopify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const customerGIDPrefix = "gid://shopify/Customer/"

// ErrInvalidID is returned when a customer id has no numeric suffix.
var ErrInvalidID = errors.New("shopify: invalid customer id")

// CustomerGID formats a numeric customer id as a global id.
func CustomerGID(id int64) string {
	return customerGIDPrefix + strconv.FormatInt(id, 10)
}

// NumericID extracts the numeric id from gid://shopify/Customer/<n>. A bare number
// is accepted as is.
func NumericID(gid string) (string, error) {
	gid = strings.TrimSpace(gid)
	id := gid
	if idx := strings.LastIndex(gid, "/"); idx >= 0 {
		id = gid[idx+1:]
	}
	if _, err := parseNumeric(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, gid)
	}
	return id, nil
}

func parseNumeric(id string) (int64, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0, ErrInvalidID
		}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return n, nil
}
