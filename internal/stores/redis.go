package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLedgerPrefix = "gfl"

// beginSubmissionLua atomically checks the token record, claims the
// submission and, when a token is given, claims the token for it.
// KEYS[1] = claim key
// KEYS[2] = used token key (may be the empty sentinel "-")
// KEYS[3] = in-flight token key (may be the empty sentinel "-")
// ARGV[1] = ttl in milliseconds
// ARGV[2] = submission id
//
// Returns "ok" or an error string: "token_consumed", "duplicate", "token_in_flight".
var beginSubmissionLua = redis.NewScript(`
if KEYS[2] ~= "-" and redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='token_consumed'}
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='duplicate'}
end
if KEYS[3] ~= "-" then
  local held = redis.call('SET', KEYS[3], ARGV[2], 'NX', 'PX', tonumber(ARGV[1]))
  if not held then
    return {err='token_in_flight'}
  end
end
redis.call('SET', KEYS[1], '1', 'PX', tonumber(ARGV[1]))
return 'ok'
`)

// releaseSubmissionLua drops the submission claim and the in-flight token
// marker if it still belongs to that submission.
// KEYS[1] = claim key
// KEYS[2] = in-flight token key (may be the empty sentinel "-")
// ARGV[1] = submission id
var releaseSubmissionLua = redis.NewScript(`
redis.call('DEL', KEYS[1])
if KEYS[2] ~= "-" and redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return 'ok'
`)

// RedisLedger is a Ledger backed by Redis.
type RedisLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLedger returns a ledger using prefix for every key.
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = defaultLedgerPrefix
	}
	return &RedisLedger{
		redis:  client,
		prefix: prefix,
	}
}

func (l *RedisLedger) claimKey(submissionID string) string {
	return l.prefix + ":claim:" + submissionID
}

func (l *RedisLedger) tokenKey(tokenKey string) string {
	return l.prefix + ":used:" + tokenKey
}

func (l *RedisLedger) inflightKey(tokenKey string) string {
	return l.prefix + ":inflight:" + tokenKey
}

func (l *RedisLedger) Begin(ctx context.Context, submissionID, tokenKey string, ttl time.Duration) error {
	if submissionID == "" {
		return errors.New("submission id is required")
	}
	tk, ik := "-", "-"
	if tokenKey != "" {
		tk, ik = l.tokenKey(tokenKey), l.inflightKey(tokenKey)
	}

	err := beginSubmissionLua.Run(ctx, l.redis,
		[]string{l.claimKey(submissionID), tk, ik},
		ttlMillis(ttl), submissionID,
	).Err()
	if err == nil {
		return nil
	}

	switch msg := err.Error(); {
	case strings.Contains(msg, "token_consumed"):
		return ErrTokenConsumed
	case strings.Contains(msg, "token_in_flight"):
		return ErrTokenInFlight
	case strings.Contains(msg, "duplicate"):
		return ErrDuplicateSubmission
	default:
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
}

func (l *RedisLedger) MarkConsumed(ctx context.Context, tokenKey string, ttl time.Duration) (bool, error) {
	const maxRetries = 4
	key := l.tokenKey(tokenKey)
	inflight := l.inflightKey(tokenKey)

	for i := 0; i < maxRetries; i++ {
		var marked bool

		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if exists == 1 {
				return tx.Del(ctx, inflight).Err()
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, time.Now().Unix(), ttl)
				pipe.Del(ctx, inflight)
				return nil
			})
			if err != nil {
				return err
			}
			marked = true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		return marked, nil
	}

	return false, fmt.Errorf("%w: too much contention on token record", ErrLedgerUnavailable)
}

func (l *RedisLedger) IsConsumed(ctx context.Context, tokenKey string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.tokenKey(tokenKey)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n == 1, nil
}

func (l *RedisLedger) Release(ctx context.Context, submissionID, tokenKey string) error {
	ik := "-"
	if tokenKey != "" {
		ik = l.inflightKey(tokenKey)
	}
	err := releaseSubmissionLua.Run(ctx, l.redis,
		[]string{l.claimKey(submissionID), ik},
		submissionID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return ms
}
