package store

import (
	"fmt"
	"strings"

	"historydb/pkg/keys"
	"historydb/pkg/models"
)

// Physical namespaces. The primary table and both secondary projections
// share one ordered keyspace, the projections re-keying records under an
// independent partition/sort pair:
//
//	t#<PK>#<SK>                      primary rows (messages, thread metadata)
//	g#msg#<BasePK>#<MSG|LLM>#<id>    id-lookup projection -> primary key
//	g#rct#<BasePK>#THREAD#<ts>#<id>  recency projection   -> primary key
//
// BasePK is the user-level partition (thread segment omitted) so id lookup
// and recency listing work without a thread id. Projection values hold only
// the primary key; readers chase the pointer, keeping the primary row the
// single source of truth.
const (
	nsTable   = "t" + keys.Delim
	nsMsgIdx  = "g" + keys.Delim + "msg" + keys.Delim
	nsRecency = "g" + keys.Delim + "rct" + keys.Delim
)

func tableKey(pk, sk string) []byte {
	return []byte(nsTable + pk + keys.Delim + sk)
}

func msgIdxKey(basePK, lookupSK string) []byte {
	return []byte(nsMsgIdx + basePK + keys.Delim + lookupSK)
}

func recencyIdxKey(basePK, recencySK string) []byte {
	return []byte(nsRecency + basePK + keys.Delim + recencySK)
}

// kindFor maps a message role onto its sort-key prefix token.
func kindFor(role models.Role) string {
	if role == models.RoleAssistant {
		return keys.KindModel
	}
	return keys.KindMessage
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for iterator upper bounds.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// splitTableKey recovers (PK, SK) from a primary table key. The sort key
// starts at the last MSG#/LLM# token for message rows; otherwise at the
// last THREAD# token for thread metadata rows.
func splitTableKey(k []byte) (pk, sk string, err error) {
	s := string(k)
	if !strings.HasPrefix(s, nsTable) {
		return "", "", fmt.Errorf("not a table key: %q", s)
	}
	s = s[len(nsTable):]
	for _, tok := range []string{
		keys.Delim + keys.KindMessage + keys.Delim,
		keys.Delim + keys.KindModel + keys.Delim,
	} {
		if i := strings.LastIndex(s, tok); i >= 0 {
			// an identifier segment can coincide with a kind token; accept
			// the split only when the tail is a well-formed sort key
			if _, _, _, perr := keys.ParseMessageSortKey(s[i+1:]); perr == nil {
				return s[:i], s[i+1:], nil
			}
		}
	}
	if i := strings.LastIndex(s, keys.Delim+keys.ThreadKeyPrefix); i >= 0 {
		return s[:i], s[i+1:], nil
	}
	return "", "", fmt.Errorf("unrecognized table key: %q", s)
}
