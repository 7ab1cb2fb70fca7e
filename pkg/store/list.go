package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"

	"historydb/pkg/keys"
	"historydb/pkg/models"
)

// kindStream walks one kind's sort-key range within a thread partition.
// Plain and model-generated rows live under separate literal prefixes, so a
// chronological listing merges the two ranges by (timestamp, message_id) —
// the order the sort keys encode past their kind token.
type kindStream struct {
	iter *pebble.Iterator
	ts   int64
	id   string
	ok   bool
}

func openKindStream(pk, kind string, curTS int64, curID string, hasCursor bool) (*kindStream, error) {
	prefix := tableKey(pk, kind+keys.Delim)
	iter, err := prefixIter(prefix)
	if err != nil {
		return nil, err
	}
	s := &kindStream{iter: iter}
	if hasCursor {
		sk, kerr := keys.MessageSortKey(kind, curTS, curID)
		if kerr != nil {
			iter.Close()
			return nil, kerr
		}
		seek := tableKey(pk, sk)
		s.ok = iter.SeekGE(seek)
		// the cursor names the last row already returned; step past it
		if s.ok && string(iter.Key()) == string(seek) {
			s.ok = iter.Next()
		}
	} else {
		s.ok = iter.First()
	}
	s.parse()
	return s, nil
}

func (s *kindStream) parse() {
	if !s.ok {
		return
	}
	_, sk, err := splitTableKey(s.iter.Key())
	if err != nil {
		s.ok = false
		return
	}
	_, ts, id, err := keys.ParseMessageSortKey(sk)
	if err != nil {
		s.ok = false
		return
	}
	s.ts, s.id = ts, id
}

func (s *kindStream) advance() {
	s.ok = s.iter.Next()
	s.parse()
}

// before reports whether s sorts before t in (timestamp, message_id) order.
func (s *kindStream) before(t *kindStream) bool {
	if s.ts != t.ts {
		return s.ts < t.ts
	}
	return s.id < t.id
}

// ListThread returns one page of a thread's messages in chronological
// (timestamp, message_id) order, ascending. Ordering is derived from key
// content, so readers observe a consistent order no matter how writes
// arrived at the backend. pageToken resumes a prior listing; limit <= 0
// selects the default page size.
func ListThread(ctx context.Context, ident Identity, threadID, pageToken string, limit int) (out []models.Message, next string, err error) {
	const op = "list_thread"
	defer observeOp(op, timeNow(), &err)
	if db == nil {
		return nil, "", unavailable(op, errNotOpen)
	}
	if err = checkCtx(ctx, op); err != nil {
		return nil, "", err
	}
	if kerr := keys.CheckID(threadID); kerr != nil {
		return nil, "", kerr
	}
	pk, _, kerr := identityKeys(ident, threadID)
	if kerr != nil {
		return nil, "", kerr
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	var curTS int64
	var curID string
	hasCursor := pageToken != ""
	if hasCursor {
		if curTS, curID, err = decodeCursor(pageToken); err != nil {
			return nil, "", err
		}
	}

	streams := make([]*kindStream, 0, 2)
	for _, kind := range []string{keys.KindMessage, keys.KindModel} {
		s, serr := openKindStream(pk, kind, curTS, curID, hasCursor)
		if serr != nil {
			// openKindStream closes its own iterator on failure; earlier
			// streams are closed by their registered defers
			return nil, "", unavailable(op, serr)
		}
		streams = append(streams, s)
		defer s.iter.Close()
	}

	now := timeNow()
	var lastTS int64
	var lastID string
	for len(out) < limit {
		if err = checkCtx(ctx, op); err != nil {
			return nil, "", err
		}
		var pick *kindStream
		for _, s := range streams {
			if !s.ok {
				continue
			}
			if pick == nil || s.before(pick) {
				pick = s
			}
		}
		if pick == nil {
			break
		}
		var msg models.Message
		if uerr := json.Unmarshal(pick.iter.Value(), &msg); uerr != nil {
			return nil, "", unavailable(op, uerr)
		}
		lastTS, lastID = pick.ts, pick.id
		if !expired(msg.ExpiryTime, now) {
			out = append(out, msg)
		}
		pick.advance()
	}
	for _, s := range streams {
		if ierr := s.iter.Error(); ierr != nil {
			return nil, "", unavailable(op, ierr)
		}
	}
	if len(out) == limit {
		for _, s := range streams {
			if s.ok {
				next = encodeCursor(lastTS, lastID)
				break
			}
		}
	}
	return out, next, nil
}

// ListThreadsByRecency returns one page of the caller's threads, most
// recently active first, via the recency projection. The projection is only
// as fresh as the latest metadata write.
func ListThreadsByRecency(ctx context.Context, ident Identity, pageToken string, limit int) (out []models.ThreadMetadata, next string, err error) {
	const op = "list_threads_by_recency"
	defer observeOp(op, timeNow(), &err)
	if db == nil {
		return nil, "", unavailable(op, errNotOpen)
	}
	if err = checkCtx(ctx, op); err != nil {
		return nil, "", err
	}
	_, basePK, kerr := identityKeys(ident, "")
	if kerr != nil {
		return nil, "", kerr
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	prefix := recencyIdxKey(basePK, keys.ThreadKeyPrefix)
	upper := prefixUpperBound(prefix)
	if pageToken != "" {
		ts, tid, derr := decodeCursor(pageToken)
		if derr != nil {
			return nil, "", derr
		}
		sk, kerr := keys.ThreadRecencyKey(ts, tid)
		if kerr != nil {
			return nil, "", kerr
		}
		// descending resume: everything strictly below the cursor row
		upper = recencyIdxKey(basePK, sk)
	}
	iter, ierr := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if ierr != nil {
		return nil, "", unavailable(op, ierr)
	}
	defer iter.Close()

	now := timeNow()
	var lastTS int64
	var lastID string
	more := false
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if err = checkCtx(ctx, op); err != nil {
			return nil, "", err
		}
		if len(out) == limit {
			more = true
			break
		}
		recSK := string(iter.Key())[len(prefix)-len(keys.ThreadKeyPrefix):]
		ts, tid, perr := keys.ParseThreadRecencyKey(recSK)
		if perr != nil {
			return nil, "", unavailable(op, perr)
		}
		metaVal, found, gerr := rawGet(iter.Value())
		if gerr != nil {
			return nil, "", unavailable(op, gerr)
		}
		lastTS, lastID = ts, tid
		if !found {
			// dangling projection row; skip
			continue
		}
		var meta models.ThreadMetadata
		if uerr := json.Unmarshal(metaVal, &meta); uerr != nil {
			return nil, "", unavailable(op, uerr)
		}
		if expired(meta.ExpiryTime, now) {
			continue
		}
		out = append(out, meta)
	}
	if ierr := iter.Error(); ierr != nil {
		return nil, "", unavailable(op, ierr)
	}
	if more {
		next = encodeCursor(lastTS, lastID)
	}
	return out, next, nil
}
