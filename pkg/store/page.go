package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Page tokens are opaque cursors over the last (timestamp, id) pair
// returned, never offsets: offsets are unstable under concurrent appends.
// The payload is base64 so callers cannot mistake it for anything
// meaningful.

func encodeCursor(ts int64, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%d#%s", ts, id)))
}

func decodeCursor(token string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", invalidState("malformed page token")
	}
	parts := strings.SplitN(string(raw), "#", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", invalidState("malformed page token")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || ts < 0 {
		return 0, "", invalidState("malformed page token")
	}
	return ts, parts[1], nil
}
