package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"historydb/pkg/keys"
	"historydb/pkg/logger"
	"historydb/pkg/models"
	"historydb/pkg/utils"
	"historydb/pkg/validation"
)

// Identity is the caller scope of an operation. TenantID is optional: the
// same user under a non-multi-tenant org and a multi-tenant org map to
// distinct, collision-free partitions.
type Identity struct {
	OrgID    string
	TenantID string
	UserID   string
}

// ThreadOptions carries thread attributes supplied on append. Title and
// Origin are only applied when the metadata does not already carry a value;
// Temporary is only consulted when the append creates the thread.
type ThreadOptions struct {
	Title     string
	Origin    string
	Temporary bool
}

// FeedbackUpdate is a partial update: nil fields are left untouched.
type FeedbackUpdate struct {
	Direction *models.FeedbackDirection
	Comment   *string
}

const defaultPageLimit = 100

// marshalRecord serializes a record for storage without HTML escaping.
// Content is an opaque payload returned byte-for-byte, so < > & must be
// stored exactly as received.
func marshalRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeMu serializes mutating operations. Appends and feedback updates are
// read-modify-write sequences over shared rows (thread metadata, the id
// projection); the backend only serializes individual key writes.
var writeMu sync.Mutex

func isoTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// expired reports whether a record with the given ExpiryTime (epoch
// seconds, 0 = none) is past its TTL. Backend deletion is best-effort, so
// every read filters on this too.
func expired(expiryTime int64, now time.Time) bool {
	return expiryTime > 0 && expiryTime <= now.Unix()
}

func identityKeys(ident Identity, threadID string) (pk, basePK string, err error) {
	if err = validation.ValidateIdentity(ident.OrgID, ident.TenantID, ident.UserID); err != nil {
		return "", "", err
	}
	basePK, err = keys.PartitionKey(ident.OrgID, ident.TenantID, ident.UserID, "")
	if err != nil {
		return "", "", err
	}
	if threadID != "" {
		pk, err = keys.PartitionKey(ident.OrgID, ident.TenantID, ident.UserID, threadID)
		if err != nil {
			return "", "", err
		}
	}
	return pk, basePK, nil
}

// mapValidation turns a validation failure into the error taxonomy:
// key-encoding violations pass through; semantic violations are
// ErrInvalidState. Either way the operation fails before any backend call.
func mapValidation(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keys.ErrInvalidIdentifier) || errors.Is(err, keys.ErrTimestampOutOfRange) {
		return err
	}
	return invalidState("%v", err)
}

// AppendMessage persists one turn and creates or updates the thread's
// metadata in the same logical operation. The two writes are not atomic as
// a pair: the message row is written first, and the metadata update is
// idempotent and order-independent, so a crash between them is
// safely recoverable. Retrying with the same message id and unchanged
// content is a no-op; changed content rewrites the record (advancing
// updated_at) without double-counting the thread's user message counter.
// Either retry form also repairs thread metadata the crashed attempt never
// wrote.
func AppendMessage(ctx context.Context, ident Identity, msg models.Message, opts ThreadOptions) (out models.Message, err error) {
	const op = "append_message"
	defer observeOp(op, timeNow(), &err)
	if db == nil {
		return models.Message{}, unavailable(op, errNotOpen)
	}
	if err = checkCtx(ctx, op); err != nil {
		return models.Message{}, err
	}
	if err = mapValidation(validation.ValidateMessage(msg)); err != nil {
		return models.Message{}, err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	pk, basePK, kerr := identityKeys(ident, msg.ThreadID)
	if kerr != nil {
		return models.Message{}, kerr
	}
	if msg.MessageID == "" {
		msg.MessageID = utils.GenID()
	}

	kind := kindFor(msg.Role)
	sk, kerr := keys.MessageSortKey(kind, msg.Timestamp, msg.MessageID)
	if kerr != nil {
		return models.Message{}, kerr
	}
	lookupSK, kerr := keys.MessageLookupKey(kind, msg.MessageID)
	if kerr != nil {
		return models.Message{}, kerr
	}
	threadSK, kerr := keys.ThreadSortKey(msg.ThreadID)
	if kerr != nil {
		return models.Message{}, kerr
	}
	primary := tableKey(pk, sk)
	idxKey := msgIdxKey(basePK, lookupSK)
	metaKey := tableKey(basePK, threadSK)
	now := timeNow()

	// Idempotent retry path: the id projection tells us whether this
	// message id was already written.
	if ptr, found, gerr := rawGet(idxKey); gerr != nil {
		return models.Message{}, unavailable(op, gerr)
	} else if found {
		if !bytes.Equal(ptr, primary) {
			return models.Message{}, invalidState("message %s already exists under a different key (another thread or timestamp)", msg.MessageID)
		}
		if prev, ok, gerr := rawGet(primary); gerr != nil {
			return models.Message{}, unavailable(op, gerr)
		} else if ok {
			var existing models.Message
			if uerr := json.Unmarshal(prev, &existing); uerr != nil {
				return models.Message{}, unavailable(op, uerr)
			}
			out, rerr := rewriteIfChanged(primary, existing, msg, now)
			if rerr != nil {
				return models.Message{}, rerr
			}
			// a crash after the message write can lose the metadata half;
			// the retry completes it
			if uerr := repairThreadMeta(ident, metaKey, basePK, out, opts); uerr != nil {
				return models.Message{}, unavailable(op, uerr)
			}
			return out, nil
		}
		// index row exists but the primary is missing (crash between the
		// two writes); fall through and write the full record
	}

	// Read the metadata first only to learn the thread's temporariness;
	// the authoritative update happens after the message is durable.
	meta, metaExists, gerr := readThreadMeta(metaKey)
	if gerr != nil {
		return models.Message{}, unavailable(op, gerr)
	}
	temporary := opts.Temporary
	if metaExists {
		temporary = meta.IsTemporary
	}

	msg.ExpiryTime = policy.ExpiryAt(now, temporary)
	msg.CreatedAt = isoTime(now)
	msg.UpdatedAt = msg.CreatedAt
	data, merr := marshalRecord(msg)
	if merr != nil {
		return models.Message{}, merr
	}
	if serr := rawSet(primary, data); serr != nil {
		logger.Error("append_message_failed", zap.String("thread", msg.ThreadID), zap.String("message", msg.MessageID), zap.Error(serr))
		return models.Message{}, unavailable(op, serr)
	}
	if serr := rawSet(idxKey, primary); serr != nil {
		return models.Message{}, unavailable(op, serr)
	}

	if uerr := upsertThreadMeta(ident, metaKey, basePK, meta, metaExists, msg, opts, now); uerr != nil {
		return models.Message{}, unavailable(op, uerr)
	}
	logger.Debug("message_appended",
		zap.String("thread", msg.ThreadID),
		zap.String("message", msg.MessageID),
		zap.String("role", string(msg.Role)))
	return msg, nil
}

// rewriteIfChanged handles an append retry for an already-stored message.
func rewriteIfChanged(primary []byte, existing, msg models.Message, now time.Time) (models.Message, error) {
	same := contentEqual(existing, msg)
	if same {
		return existing, nil
	}
	// Newer content for the same (id, timestamp): rewrite in place. The
	// immutable and store-maintained fields are taken from the stored
	// record; feedback only changes through SetFeedback.
	msg.CreatedAt = existing.CreatedAt
	msg.ExpiryTime = existing.ExpiryTime
	msg.Verso = existing.Verso
	msg.Feedback = existing.Feedback
	msg.UpdatedAt = isoTime(now)
	data, err := marshalRecord(msg)
	if err != nil {
		return models.Message{}, err
	}
	if err := rawSet(primary, data); err != nil {
		return models.Message{}, unavailable("append_message", err)
	}
	return msg, nil
}

// repairThreadMeta completes the metadata half of an append whose earlier
// attempt crashed between the message write and the metadata upsert. A
// metadata row already covering the message's timestamp needs nothing;
// a missing or stale row means the counter increment and recency row were
// lost with the crash, so the full upsert re-applies them.
func repairThreadMeta(ident Identity, metaKey []byte, basePK string, msg models.Message, opts ThreadOptions) error {
	meta, exists, err := readThreadMeta(metaKey)
	if err != nil {
		return err
	}
	if exists && meta.LastTimestamp >= msg.Timestamp {
		return nil
	}
	return upsertThreadMeta(ident, metaKey, basePK, meta, exists, msg, opts, timeNow())
}

// contentEqual compares the caller-supplied payload of two messages.
func contentEqual(a, b models.Message) bool {
	ab, _ := json.Marshal(struct {
		C  models.Content             `json:"c"`
		SR string                     `json:"sr"`
		RM map[string]json.RawMessage `json:"rm"`
		S  []json.RawMessage          `json:"s"`
	}{a.Content, a.StopReason, a.ResponseMetadata, a.Sources})
	bb, _ := json.Marshal(struct {
		C  models.Content             `json:"c"`
		SR string                     `json:"sr"`
		RM map[string]json.RawMessage `json:"rm"`
		S  []json.RawMessage          `json:"s"`
	}{b.Content, b.StopReason, b.ResponseMetadata, b.Sources})
	return bytes.Equal(ab, bb)
}

func readThreadMeta(metaKey []byte) (models.ThreadMetadata, bool, error) {
	var meta models.ThreadMetadata
	v, found, err := rawGet(metaKey)
	if err != nil || !found {
		return meta, false, err
	}
	if err := json.Unmarshal(v, &meta); err != nil {
		return meta, false, err
	}
	return meta, true, nil
}

// upsertThreadMeta applies the metadata half of an append, under writeMu.
// Counter increments are commutative and title/origin are set-if-absent, so
// the result is independent of append order. The recency projection is
// maintained delete-then-put so each thread keeps exactly one recency row.
func upsertThreadMeta(ident Identity, metaKey []byte, basePK string, meta models.ThreadMetadata, exists bool, msg models.Message, opts ThreadOptions, now time.Time) error {
	oldLast := meta.LastTimestamp
	if !exists {
		meta = models.ThreadMetadata{
			ThreadID:    msg.ThreadID,
			OrgID:       ident.OrgID,
			TenantID:    ident.TenantID,
			UserID:      ident.UserID,
			IsTemporary: opts.Temporary,
			CreatedAt:   isoTime(now),
		}
	}
	if msg.Role == models.RoleUser {
		meta.UserMessageCount++
	}
	if meta.Title == "" {
		meta.Title = opts.Title
	}
	if meta.Origin == "" {
		meta.Origin = opts.Origin
	}
	if msg.Timestamp > meta.LastTimestamp {
		meta.LastTimestamp = msg.Timestamp
	}
	meta.UpdatedAt = isoTime(now)
	// Refresh the thread's expiry with the same policy as its messages so
	// metadata never underlives the messages it summarizes.
	meta.ExpiryTime = policy.ExpiryAt(now, meta.IsTemporary)

	data, err := marshalRecord(meta)
	if err != nil {
		return err
	}
	if err := rawSet(metaKey, data); err != nil {
		return err
	}
	if meta.LastTimestamp != oldLast || !exists {
		if exists && oldLast > 0 {
			oldSK, kerr := keys.ThreadRecencyKey(oldLast, meta.ThreadID)
			if kerr == nil {
				if derr := rawDelete(recencyIdxKey(basePK, oldSK)); derr != nil {
					return derr
				}
			}
		}
		newSK, kerr := keys.ThreadRecencyKey(meta.LastTimestamp, meta.ThreadID)
		if kerr != nil {
			return kerr
		}
		if err := rawSet(recencyIdxKey(basePK, newSK), metaKey); err != nil {
			return err
		}
	}
	return nil
}

// GetMessage returns a message by id via the id projection, independent of
// when it was written. Expired records read as ErrNotFound.
func GetMessage(ctx context.Context, ident Identity, messageID string) (out models.Message, err error) {
	const op = "get_message"
	defer observeOp(op, timeNow(), &err)
	if db == nil {
		return models.Message{}, unavailable(op, errNotOpen)
	}
	if err = checkCtx(ctx, op); err != nil {
		return models.Message{}, err
	}
	if kerr := keys.CheckID(messageID); kerr != nil {
		return models.Message{}, kerr
	}
	_, basePK, kerr := identityKeys(ident, "")
	if kerr != nil {
		return models.Message{}, kerr
	}
	msg, _, ferr := findMessage(basePK, messageID)
	if ferr != nil {
		if errors.Is(ferr, ErrNotFound) {
			return models.Message{}, ferr
		}
		return models.Message{}, unavailable(op, ferr)
	}
	return msg, nil
}

// findMessage chases the id projection for either kind and returns the
// stored record plus its primary key. Expired records are a miss.
func findMessage(basePK, messageID string) (models.Message, []byte, error) {
	for _, kind := range []string{keys.KindModel, keys.KindMessage} {
		lookupSK, err := keys.MessageLookupKey(kind, messageID)
		if err != nil {
			return models.Message{}, nil, err
		}
		ptr, found, err := rawGet(msgIdxKey(basePK, lookupSK))
		if err != nil {
			return models.Message{}, nil, err
		}
		if !found {
			continue
		}
		v, ok, err := rawGet(ptr)
		if err != nil {
			return models.Message{}, nil, err
		}
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(v, &msg); err != nil {
			return models.Message{}, nil, err
		}
		if expired(msg.ExpiryTime, timeNow()) {
			continue
		}
		return msg, ptr, nil
	}
	return models.Message{}, nil, notFound("message", messageID)
}

// SetFeedback applies a partial feedback update to an assistant message:
// only the supplied fields change, everything else is untouched, and
// updated_at advances. Feedback on a user-authored turn is rejected with
// ErrInvalidState.
func SetFeedback(ctx context.Context, ident Identity, messageID string, upd FeedbackUpdate) (out models.Message, err error) {
	const op = "set_feedback"
	defer observeOp(op, timeNow(), &err)
	if db == nil {
		return models.Message{}, unavailable(op, errNotOpen)
	}
	if err = checkCtx(ctx, op); err != nil {
		return models.Message{}, err
	}
	if upd.Direction == nil && upd.Comment == nil {
		return models.Message{}, invalidState("feedback update carries no fields")
	}
	if upd.Direction != nil && *upd.Direction != "" {
		if verr := validation.ValidateFeedbackDirection(*upd.Direction); verr != nil {
			return models.Message{}, invalidState("%v", verr)
		}
	}
	if kerr := keys.CheckID(messageID); kerr != nil {
		return models.Message{}, kerr
	}
	_, basePK, kerr := identityKeys(ident, "")
	if kerr != nil {
		return models.Message{}, kerr
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	msg, primary, ferr := findMessage(basePK, messageID)
	if ferr != nil {
		if errors.Is(ferr, ErrNotFound) {
			return models.Message{}, ferr
		}
		return models.Message{}, unavailable(op, ferr)
	}
	if msg.Role != models.RoleAssistant {
		return models.Message{}, invalidState("feedback is restricted to assistant messages")
	}
	if upd.Direction != nil {
		msg.Verso = *upd.Direction
	}
	if upd.Comment != nil {
		msg.Feedback = *upd.Comment
	}
	msg.UpdatedAt = isoTime(timeNow())
	data, merr := marshalRecord(msg)
	if merr != nil {
		return models.Message{}, merr
	}
	if serr := rawSet(primary, data); serr != nil {
		return models.Message{}, unavailable(op, serr)
	}
	logger.Debug("feedback_set", zap.String("message", messageID))
	return msg, nil
}
