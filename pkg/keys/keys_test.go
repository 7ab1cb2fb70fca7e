package keys

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKeyShapes(t *testing.T) {
	cases := []struct {
		name                      string
		org, tenant, user, thread string
		want                      string
	}{
		{"full", "acme", "team-a", "u1", "th1", "ORG#acme#TENANT#team-a#USER#u1#THREAD#th1"},
		{"no_tenant", "acme", "", "u1", "th1", "ORG#acme#USER#u1#THREAD#th1"},
		{"no_thread", "acme", "team-a", "u1", "", "ORG#acme#TENANT#team-a#USER#u1"},
		{"base", "acme", "", "u1", "", "ORG#acme#USER#u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PartitionKey(tc.org, tc.tenant, tc.user, tc.thread)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPartitionKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct{ org, tenant, user, thread string }{
		{"acme", "team-a", "u1", "th1"},
		{"acme", "", "u1", "th1"},
		{"acme", "team-a", "u1", ""},
		{"acme", "", "u1", ""},
	} {
		pk, err := PartitionKey(tc.org, tc.tenant, tc.user, tc.thread)
		require.NoError(t, err)
		org, tenant, user, thread, err := ParsePartitionKey(pk)
		require.NoError(t, err)
		assert.Equal(t, tc.org, org)
		assert.Equal(t, tc.tenant, tenant)
		assert.Equal(t, tc.user, user)
		assert.Equal(t, tc.thread, thread)
	}
}

func TestTenantAbsentNeverCollidesWithTenantPresent(t *testing.T) {
	with, err := PartitionKey("acme", "t1", "u1", "")
	require.NoError(t, err)
	without, err := PartitionKey("acme", "", "u1", "")
	require.NoError(t, err)
	assert.NotEqual(t, with, without)
}

func TestIdentifierValidation(t *testing.T) {
	assert.ErrorIs(t, CheckID(""), ErrInvalidIdentifier)
	assert.ErrorIs(t, CheckID("has#delim"), ErrInvalidIdentifier)
	assert.NoError(t, CheckID("ok-id_1"))

	_, err := PartitionKey("a#b", "", "u1", "")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = PartitionKey("acme", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = MessageSortKey(KindMessage, 1, "id#bad")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = MessageSortKey("FOO", 1, "id")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestTimestampBounds(t *testing.T) {
	assert.NoError(t, CheckTimestamp(0))
	assert.NoError(t, CheckTimestamp(math.MaxInt64))
	assert.ErrorIs(t, CheckTimestamp(-1), ErrTimestampOutOfRange)

	sk, err := MessageSortKey(KindMessage, math.MaxInt64, "m1")
	require.NoError(t, err)
	assert.Equal(t, "MSG#9223372036854775807#m1", sk)

	sk, err = MessageSortKey(KindMessage, 0, "m1")
	require.NoError(t, err)
	assert.Equal(t, "MSG#0000000000000000000#m1", sk)
}

// Byte order of encoded sort keys must equal chronological order within a
// kind, with message id as the tie-break.
func TestSortKeyOrderMatchesChronology(t *testing.T) {
	type ev struct {
		ts int64
		id string
	}
	evs := []ev{
		{0, "z"},
		{1, "a"},
		{9, "m"},
		{10, "a"},
		{10, "b"},
		{999999999999, "x"},
		{1700000000000, "a"},
		{math.MaxInt64, "a"},
	}
	var encoded []string
	for _, e := range evs {
		sk, err := MessageSortKey(KindMessage, e.ts, e.id)
		require.NoError(t, err)
		encoded = append(encoded, sk)
	}
	assert.True(t, sort.StringsAreSorted(encoded), "encoded keys out of order: %v", encoded)
}

func TestMessageSortKeyRoundTrip(t *testing.T) {
	sk, err := MessageSortKey(KindModel, 1700000000123, "msg-42")
	require.NoError(t, err)
	kind, ts, id, err := ParseMessageSortKey(sk)
	require.NoError(t, err)
	assert.Equal(t, KindModel, kind)
	assert.Equal(t, int64(1700000000123), ts)
	assert.Equal(t, "msg-42", id)

	_, _, _, err = ParseMessageSortKey("MSG#123#short-pad")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, _, _, err = ParseMessageSortKey("THREAD#0000000000000000001#x")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestThreadKeys(t *testing.T) {
	sk, err := ThreadSortKey("th1")
	require.NoError(t, err)
	assert.Equal(t, "THREAD#th1", sk)

	rk, err := ThreadRecencyKey(42, "th1")
	require.NoError(t, err)
	assert.Equal(t, "THREAD#0000000000000000042#th1", rk)

	ts, tid, err := ParseThreadRecencyKey(rk)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)
	assert.Equal(t, "th1", tid)

	// thread sort keys and recency keys sort by activity time
	a, _ := ThreadRecencyKey(10, "zzz")
	b, _ := ThreadRecencyKey(11, "aaa")
	assert.Less(t, a, b)
}

func TestMessageLookupKey(t *testing.T) {
	lk, err := MessageLookupKey(KindMessage, "m1")
	require.NoError(t, err)
	assert.Equal(t, "MSG#m1", lk)
	_, err = MessageLookupKey("BAD", "m1")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}
