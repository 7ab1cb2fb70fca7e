// Package keys maps logical conversation identifiers to the physical
// partition/sort key strings used by the store and its projections. All
// functions are pure; no I/O happens here.
//
// The sort keys embed a 19-digit zero-padded epoch-millisecond timestamp so
// that byte ordering of the encoded string equals chronological ordering.
// Changing the padding width or any prefix token is a breaking schema
// migration: existing data would no longer sort or resolve correctly.
package keys

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Delim separates key segments. Identifiers must never contain it.
const Delim = "#"

// Record kind tokens. KindMessage marks plain (user-authored) turns,
// KindModel marks model-generated turns.
const (
	KindMessage = "MSG"
	KindModel   = "LLM"
)

// Partition segment tags.
const (
	tagOrg    = "ORG"
	tagTenant = "TENANT"
	tagUser   = "USER"
	tagThread = "THREAD"
)

// ThreadKeyPrefix prefixes thread sort keys and thread recency keys.
const ThreadKeyPrefix = tagThread + Delim

// tsWidth is the zero-pad width for timestamps. 19 digits hold every
// non-negative int64, which covers epoch milliseconds far past year 5000.
const tsWidth = 19

// maxTimestamp is the largest encodable timestamp. Anything above it would
// not fit the fixed pad width.
const maxTimestamp = math.MaxInt64

var (
	// ErrInvalidIdentifier reports an identifier that is empty or contains
	// the key delimiter.
	ErrInvalidIdentifier = errors.New("keys: invalid identifier")
	// ErrTimestampOutOfRange reports a timestamp that cannot be encoded at
	// the fixed pad width.
	ErrTimestampOutOfRange = errors.New("keys: timestamp out of range")
)

// CheckID validates a single identifier segment.
func CheckID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if strings.Contains(id, Delim) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentifier, id, Delim)
	}
	return nil
}

// CheckTimestamp validates an epoch-millisecond timestamp for encoding.
func CheckTimestamp(ts int64) error {
	if ts < 0 || ts > maxTimestamp {
		return fmt.Errorf("%w: %d", ErrTimestampOutOfRange, ts)
	}
	return nil
}

func padTimestamp(ts int64) string {
	return fmt.Sprintf("%0*d", tsWidth, ts)
}

func validKind(kind string) error {
	if kind != KindMessage && kind != KindModel {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidIdentifier, kind)
	}
	return nil
}

// PartitionKey builds the partition key for a conversation scope. The tenant
// and thread segments are omitted entirely (not left blank) when empty, so a
// non-tenant key never collides with a tenant one.
//
//	ORG#<org>[#TENANT#<tenant>]#USER#<user>[#THREAD#<thread>]
func PartitionKey(orgID, tenantID, userID, threadID string) (string, error) {
	if err := CheckID(orgID); err != nil {
		return "", err
	}
	if tenantID != "" {
		if err := CheckID(tenantID); err != nil {
			return "", err
		}
	}
	if err := CheckID(userID); err != nil {
		return "", err
	}
	if threadID != "" {
		if err := CheckID(threadID); err != nil {
			return "", err
		}
	}
	var b strings.Builder
	b.WriteString(tagOrg)
	b.WriteString(Delim)
	b.WriteString(orgID)
	if tenantID != "" {
		b.WriteString(Delim)
		b.WriteString(tagTenant)
		b.WriteString(Delim)
		b.WriteString(tenantID)
	}
	b.WriteString(Delim)
	b.WriteString(tagUser)
	b.WriteString(Delim)
	b.WriteString(userID)
	if threadID != "" {
		b.WriteString(Delim)
		b.WriteString(tagThread)
		b.WriteString(Delim)
		b.WriteString(threadID)
	}
	return b.String(), nil
}

// ParsePartitionKey recovers the identifiers encoded by PartitionKey.
// Absent segments come back as empty strings.
func ParsePartitionKey(pk string) (orgID, tenantID, userID, threadID string, err error) {
	segs := strings.Split(pk, Delim)
	if len(segs)%2 != 0 {
		return "", "", "", "", fmt.Errorf("%w: malformed partition key %q", ErrInvalidIdentifier, pk)
	}
	for i := 0; i < len(segs); i += 2 {
		tag, val := segs[i], segs[i+1]
		if val == "" {
			return "", "", "", "", fmt.Errorf("%w: empty segment in %q", ErrInvalidIdentifier, pk)
		}
		switch tag {
		case tagOrg:
			orgID = val
		case tagTenant:
			tenantID = val
		case tagUser:
			userID = val
		case tagThread:
			threadID = val
		default:
			return "", "", "", "", fmt.Errorf("%w: unknown segment tag %q", ErrInvalidIdentifier, tag)
		}
	}
	if orgID == "" || userID == "" {
		return "", "", "", "", fmt.Errorf("%w: missing org or user in %q", ErrInvalidIdentifier, pk)
	}
	return orgID, tenantID, userID, threadID, nil
}

// MessageSortKey builds the chronological sort key for a message row:
//
//	MSG#<19-digit ts>#<message_id>  (plain turns)
//	LLM#<19-digit ts>#<message_id>  (model-generated turns)
//
// Within a kind, byte order equals (timestamp, message_id) order; the id is
// the tie-break when two messages share a timestamp.
func MessageSortKey(kind string, ts int64, messageID string) (string, error) {
	if err := validKind(kind); err != nil {
		return "", err
	}
	if err := CheckTimestamp(ts); err != nil {
		return "", err
	}
	if err := CheckID(messageID); err != nil {
		return "", err
	}
	return kind + Delim + padTimestamp(ts) + Delim + messageID, nil
}

// ParseMessageSortKey decodes a MessageSortKey back into its parts.
func ParseMessageSortKey(sk string) (kind string, ts int64, messageID string, err error) {
	parts := strings.SplitN(sk, Delim, 3)
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("%w: malformed sort key %q", ErrInvalidIdentifier, sk)
	}
	if err := validKind(parts[0]); err != nil {
		return "", 0, "", err
	}
	if len(parts[1]) != tsWidth {
		return "", 0, "", fmt.Errorf("%w: bad timestamp width in %q", ErrInvalidIdentifier, sk)
	}
	n, perr := strconv.ParseInt(parts[1], 10, 64)
	if perr != nil || n < 0 {
		return "", 0, "", fmt.Errorf("%w: bad timestamp in %q", ErrInvalidIdentifier, sk)
	}
	return parts[0], n, parts[2], nil
}

// MessageLookupKey builds the id-projection sort key used for point lookup
// by message id, independent of when the message was written:
//
//	MSG#<message_id> / LLM#<message_id>
func MessageLookupKey(kind, messageID string) (string, error) {
	if err := validKind(kind); err != nil {
		return "", err
	}
	if err := CheckID(messageID); err != nil {
		return "", err
	}
	return kind + Delim + messageID, nil
}

// ThreadSortKey builds the sort key of a thread metadata row: THREAD#<id>.
func ThreadSortKey(threadID string) (string, error) {
	if err := CheckID(threadID); err != nil {
		return "", err
	}
	return tagThread + Delim + threadID, nil
}

// ThreadRecencyKey builds the recency-projection sort key for thread
// listing, ordered by the thread's latest activity:
//
//	THREAD#<19-digit ts>#<thread_id>
func ThreadRecencyKey(ts int64, threadID string) (string, error) {
	if err := CheckTimestamp(ts); err != nil {
		return "", err
	}
	if err := CheckID(threadID); err != nil {
		return "", err
	}
	return tagThread + Delim + padTimestamp(ts) + Delim + threadID, nil
}

// ParseThreadRecencyKey decodes a ThreadRecencyKey.
func ParseThreadRecencyKey(sk string) (ts int64, threadID string, err error) {
	parts := strings.SplitN(sk, Delim, 3)
	if len(parts) != 3 || parts[0] != tagThread || len(parts[1]) != tsWidth {
		return 0, "", fmt.Errorf("%w: malformed recency key %q", ErrInvalidIdentifier, sk)
	}
	n, perr := strconv.ParseInt(parts[1], 10, 64)
	if perr != nil || n < 0 {
		return 0, "", fmt.Errorf("%w: bad timestamp in %q", ErrInvalidIdentifier, sk)
	}
	return n, parts[2], nil
}
