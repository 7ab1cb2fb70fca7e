package store

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"historydb/pkg/keys"
	"historydb/pkg/logger"
)

// PurgeOptions bounds one purge run.
type PurgeOptions struct {
	// BatchSize caps deletions collected per scan pass; <= 0 uses 1000.
	BatchSize int
	// MaxBatchBytes stops the run once this many serialized bytes of
	// expired records were examined; 0 means unbounded.
	MaxBatchBytes uint64
	// DryRun counts candidates without deleting anything.
	DryRun bool
	// Limiter paces deletions; nil means unpaced.
	Limiter *rate.Limiter
}

// PurgeResult summarizes one purge run.
type PurgeResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Deleted int `json:"deleted"`
}

// purgeProbe decodes only what the purge needs from a stored record.
type purgeProbe struct {
	ExpiryTime    int64 `json:"ExpiryTime"`
	LastTimestamp int64 `json:"last_timestamp"`
}

// deadRecord is one expired record and every key that must go with it.
type deadRecord struct {
	keys [][]byte
	kind string // "message" or "thread"
}

// PurgeExpired physically deletes rows whose ExpiryTime has passed,
// together with their projection rows. Reads already filter expired
// records, so this only reclaims space; it repeatedly scans and deletes in
// bounded batches until no expired rows remain or a budget is hit.
func PurgeExpired(ctx context.Context, opts PurgeOptions) (PurgeResult, error) {
	const op = "purge_expired"
	var res PurgeResult
	if db == nil {
		return res, unavailable(op, errNotOpen)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	nowSec := timeNow().Unix()
	var bytesSeen uint64
	resume := []byte(nsTable)

	for {
		if err := checkCtx(ctx, op); err != nil {
			return res, err
		}
		dead, nextResume, scanned, seen, err := collectExpired(resume, batch, nowSec)
		if err != nil {
			return res, unavailable(op, err)
		}
		res.Scanned += scanned
		res.Expired += len(dead)
		bytesSeen += seen

		if !opts.DryRun {
			for _, rec := range dead {
				if opts.Limiter != nil {
					if err := opts.Limiter.Wait(ctx); err != nil {
						return res, unavailable(op, err)
					}
				}
				for _, k := range rec.keys {
					if err := rawDelete(k); err != nil {
						return res, unavailable(op, err)
					}
				}
				purgedTotal.WithLabelValues(rec.kind).Inc()
				res.Deleted++
			}
		}
		if nextResume == nil {
			break
		}
		resume = nextResume
		if opts.MaxBatchBytes > 0 && bytesSeen >= opts.MaxBatchBytes {
			logger.Info("purge_byte_budget_reached", zap.Uint64("bytes", bytesSeen))
			break
		}
	}
	return res, nil
}

// collectExpired scans the primary namespace from resume and gathers up to
// batch expired records, each grouped with its projection keys so a record
// and its index rows die together. nextResume is nil once the namespace is
// exhausted.
func collectExpired(resume []byte, batch int, nowSec int64) (dead []deadRecord, nextResume []byte, scanned int, bytesSeen uint64, err error) {
	iter, err := prefixIter([]byte(nsTable))
	if err != nil {
		return nil, nil, 0, 0, err
	}
	defer iter.Close()

	for ok := iter.SeekGE(resume); ok; ok = iter.Next() {
		if len(dead) >= batch {
			nextResume = append([]byte(nil), iter.Key()...)
			break
		}
		scanned++
		var probe purgeProbe
		if uerr := json.Unmarshal(iter.Value(), &probe); uerr != nil {
			continue
		}
		if probe.ExpiryTime == 0 || probe.ExpiryTime > nowSec {
			continue
		}
		bytesSeen += uint64(len(iter.Value()))
		rec, derr := deletionGroup(iter.Key(), probe)
		if derr != nil {
			logger.Warn("purge_unparseable_key", zap.ByteString("key", iter.Key()), zap.Error(derr))
			continue
		}
		dead = append(dead, rec)
	}
	if ierr := iter.Error(); ierr != nil {
		return nil, nil, 0, 0, ierr
	}
	return dead, nextResume, scanned, bytesSeen, nil
}

// deletionGroup lists the primary key and every projection key belonging to
// one expired record.
func deletionGroup(primary []byte, probe purgeProbe) (deadRecord, error) {
	pk, sk, err := splitTableKey(primary)
	if err != nil {
		return deadRecord{}, err
	}
	rec := deadRecord{keys: [][]byte{append([]byte(nil), primary...)}}
	if strings.HasPrefix(sk, keys.ThreadKeyPrefix) {
		rec.kind = "thread"
		tid := strings.TrimPrefix(sk, keys.ThreadKeyPrefix)
		if probe.LastTimestamp > 0 {
			recSK, kerr := keys.ThreadRecencyKey(probe.LastTimestamp, tid)
			if kerr != nil {
				return deadRecord{}, kerr
			}
			rec.keys = append(rec.keys, recencyIdxKey(pk, recSK))
		}
		return rec, nil
	}
	rec.kind = "message"
	kind, _, msgID, perr := keys.ParseMessageSortKey(sk)
	if perr != nil {
		return deadRecord{}, perr
	}
	org, tenant, user, _, perr := keys.ParsePartitionKey(pk)
	if perr != nil {
		return deadRecord{}, perr
	}
	basePK, kerr := keys.PartitionKey(org, tenant, user, "")
	if kerr != nil {
		return deadRecord{}, kerr
	}
	lookupSK, kerr := keys.MessageLookupKey(kind, msgID)
	if kerr != nil {
		return deadRecord{}, kerr
	}
	rec.keys = append(rec.keys, msgIdxKey(basePK, lookupSK))
	return rec, nil
}
