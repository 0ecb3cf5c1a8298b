package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 8

// RedisOptions configures the Redis connection and key namespace.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps sessions as JSON strings and results as lists.
//
// Keys:
//
//	<prefix>:session:<id>               session JSON
//	<prefix>:session-public:<sessionId> internal id
//	<prefix>:results:<sessionId>        RPUSH list of result JSON
type RedisStore struct {
	stamper
	client *redis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, opts.Prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "isbnfinder"
	}
	return &RedisStore{stamper: defaultStamper(), client: client, prefix: prefix}
}

func (r *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisStore) publicKey(sessionID string) string {
	return fmt.Sprintf("%s:session-public:%s", r.prefix, sessionID)
}

func (r *RedisStore) resultsKey(sessionID string) string {
	return fmt.Sprintf("%s:results:%s", r.prefix, sessionID)
}

// CreateSession stores the encoded session and indexes it by public id.
func (r *RedisStore) CreateSession(ctx context.Context, ns models.NewSession) (models.SearchSession, error) {
	if err := ns.Validate(); err != nil {
		return models.SearchSession{}, err
	}

	session := ns.Build(r.newID(), r.now())
	payload, err := json.Marshal(session)
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("encode session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), payload, 0).Err(); err != nil {
		return models.SearchSession{}, fmt.Errorf("save session: %w", err)
	}
	claimed, err := r.client.SetNX(ctx, r.publicKey(session.SessionID), session.ID, 0).Result()
	if err != nil {
		_ = r.client.Del(ctx, r.sessionKey(session.ID)).Err()
		return models.SearchSession{}, fmt.Errorf("index session: %w", err)
	}
	if !claimed {
		_ = r.client.Del(ctx, r.sessionKey(session.ID)).Err()
		return models.SearchSession{}, fmt.Errorf("%w: %s", ErrDuplicateSession, session.SessionID)
	}
	return session, nil
}

// GetSession decodes the session stored under id.
func (r *RedisStore) GetSession(ctx context.Context, id string) (models.SearchSession, error) {
	payload, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SearchSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(payload)
}

// GetSessionByPublicID resolves the public id index, then reads the session.
func (r *RedisStore) GetSessionByPublicID(ctx context.Context, sessionID string) (models.SearchSession, error) {
	id, err := r.client.Get(ctx, r.publicKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.SearchSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.SearchSession{}, fmt.Errorf("resolve session: %w", err)
	}
	return r.GetSession(ctx, id)
}

// UpdateSession applies update under WATCH so concurrent writers never lose a change.
func (r *RedisStore) UpdateSession(ctx context.Context, id string, update models.SessionUpdate) (models.SearchSession, error) {
	key := r.sessionKey(id)
	var updated models.SearchSession

	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		session, err := decodeSession(payload)
		if err != nil {
			return err
		}
		if err := models.ApplyUpdate(&session, update, r.now()); err != nil {
			return err
		}
		next, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			updated = session
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.SearchSession{}, err
		}
		return updated, nil
	}
	return models.SearchSession{}, fmt.Errorf("update session %s: too much contention", id)
}

// AppendResult pushes rec onto the result list of its session.
func (r *RedisStore) AppendResult(ctx context.Context, rec models.SearchResultRecord) (models.SearchResultRecord, error) {
	if err := validateResult(rec); err != nil {
		return models.SearchResultRecord{}, err
	}
	exists, err := r.client.Exists(ctx, r.publicKey(rec.SessionID)).Result()
	if err != nil {
		return models.SearchResultRecord{}, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return models.SearchResultRecord{}, ErrSessionNotFound
	}

	rec = r.stampResult(rec)
	payload, err := json.Marshal(rec)
	if err != nil {
		return models.SearchResultRecord{}, fmt.Errorf("encode result: %w", err)
	}
	if err := r.client.RPush(ctx, r.resultsKey(rec.SessionID), payload).Err(); err != nil {
		return models.SearchResultRecord{}, fmt.Errorf("append result: %w", err)
	}
	return rec, nil
}

// ListResultsByPublicID returns the result list of a session in push order.
func (r *RedisStore) ListResultsByPublicID(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error) {
	items, err := r.client.LRange(ctx, r.resultsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]models.SearchResultRecord, 0, len(items))
	for _, item := range items {
		var rec models.SearchResultRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeSession(payload []byte) (models.SearchSession, error) {
	var session models.SearchSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.SearchSession{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
