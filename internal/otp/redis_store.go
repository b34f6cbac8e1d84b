package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "otp:registration"

	fieldCodeHash       = "code_hash"
	fieldSupersededHash = "superseded_hash"
	fieldUserID         = "user_id"
	fieldCreatedAt      = "created_at"
	fieldExpiresAt      = "expires_at"
	fieldAttempts       = "attempts"
	fieldLocked         = "locked"
)

// checkCode runs the whole verify step server side so concurrent guesses
// are serialized by Redis.
// KEYS[1] ticket hash; ARGV[1] code hash, ARGV[2] now in ms, ARGV[3] max attempts.
var checkCode = redis.NewScript(`
local f = redis.call("HMGET", KEYS[1], "code_hash", "superseded_hash", "expires_at", "attempts", "locked", "user_id", "created_at")
if not f[3] then
	return {"missing", "0"}
end
local attempts = tonumber(f[4]) or 0
if f[5] == "1" then
	return {"locked", tostring(attempts)}
end
if tonumber(ARGV[2]) > tonumber(f[3]) then
	redis.call("DEL", KEYS[1])
	return {"expired", tostring(attempts)}
end
if f[1] and f[1] ~= "" and f[1] == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return {"matched", tostring(attempts), f[6] or "", f[7] or "0", f[3]}
end
if f[2] and f[2] ~= "" and f[2] == ARGV[1] then
	return {"superseded", tostring(attempts)}
end
attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if attempts >= tonumber(ARGV[3]) then
	redis.call("HSET", KEYS[1], "locked", "1", "code_hash", "", "superseded_hash", "")
	return {"locked", tostring(attempts)}
end
return {"mismatch", tostring(attempts)}
`)

// RedisStore keeps tickets as Redis hashes so every instance sees them.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed ticket store under keyPrefix.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used for TTL computation, used in tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) Save(ctx context.Context, t Ticket) error {
	key := s.key(t.Email)
	locked := "0"
	if t.Locked {
		locked = "1"
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCodeHash:       t.CodeHash,
		fieldSupersededHash: t.SupersededHash,
		fieldUserID:         t.UserID,
		fieldCreatedAt:      strconv.FormatInt(t.CreatedAt.UnixMilli(), 10),
		fieldExpiresAt:      strconv.FormatInt(t.ExpiresAt.UnixMilli(), 10),
		fieldAttempts:       strconv.Itoa(t.Attempts),
		fieldLocked:         locked,
	})
	pipe.Expire(ctx, key, t.StorageTTL(s.now()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (Ticket, error) {
	values, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return Ticket{}, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 {
		return Ticket{}, ErrTicketNotFound
	}

	createdAt, err := parseMillis(values[fieldCreatedAt])
	if err != nil {
		return Ticket{}, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseMillis(values[fieldExpiresAt])
	if err != nil {
		return Ticket{}, fmt.Errorf("parse expires_at: %w", err)
	}
	attempts, _ := strconv.Atoi(values[fieldAttempts])

	return Ticket{
		Email:          email,
		CodeHash:       values[fieldCodeHash],
		SupersededHash: values[fieldSupersededHash],
		UserID:         values[fieldUserID],
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
		Attempts:       attempts,
		Locked:         values[fieldLocked] == "1",
	}, nil
}

func (s *RedisStore) Check(ctx context.Context, email, codeHash string, now time.Time, maxAttempts int) (Attempt, error) {
	args := []any{codeHash, strconv.FormatInt(now.UnixMilli(), 10), strconv.Itoa(maxAttempts)}
	reply, err := checkCode.Run(ctx, s.client, []string{s.key(email)}, args...).StringSlice()
	if err != nil {
		return Attempt{}, fmt.Errorf("redis check otp: %w", err)
	}
	if len(reply) < 2 {
		return Attempt{}, fmt.Errorf("redis check otp: short reply %v", reply)
	}
	attempts, _ := strconv.Atoi(reply[1])

	switch reply[0] {
	case "missing":
		return Attempt{}, ErrTicketNotFound
	case "locked":
		return Attempt{Outcome: OutcomeLocked, Attempts: attempts}, nil
	case "expired":
		return Attempt{Outcome: OutcomeExpired, Attempts: attempts}, nil
	case "superseded":
		return Attempt{Outcome: OutcomeSuperseded, Attempts: attempts}, nil
	case "mismatch":
		return Attempt{Outcome: OutcomeMismatch, Attempts: attempts}, nil
	case "matched":
		if len(reply) < 5 {
			return Attempt{}, fmt.Errorf("redis check otp: short match reply %v", reply)
		}
		createdAt, err := parseMillis(reply[3])
		if err != nil {
			return Attempt{}, fmt.Errorf("parse created_at: %w", err)
		}
		expiresAt, err := parseMillis(reply[4])
		if err != nil {
			return Attempt{}, fmt.Errorf("parse expires_at: %w", err)
		}
		return Attempt{
			Outcome:  OutcomeMatched,
			Attempts: attempts,
			Ticket: Ticket{
				Email:     email,
				UserID:    reply[2],
				CreatedAt: createdAt,
				ExpiresAt: expiresAt,
				Attempts:  attempts,
			},
		}, nil
	}
	return Attempt{}, fmt.Errorf("redis check otp: unknown outcome %q", reply[0])
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	return nil
}

func (s *RedisStore) key(email string) string {
	return fmt.Sprintf("%s:%s", s.prefix, email)
}

func parseMillis(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(v).UTC(), nil
}
