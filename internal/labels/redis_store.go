package labels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stellarview/internal/storage"
)

const maxAddRetries = 5

// RedisStore keeps each image's labels as a JSON string without expiry. The
// client is shared and not closed here.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func decode(data string) ([]Label, error) {
	labels := []Label{}
	if err := json.Unmarshal([]byte(data), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	return labels, nil
}

func (s *RedisStore) Get(ctx context.Context, url string) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.client.Get(ctx, Key(url)).Result()
	if errors.Is(err, redis.Nil) {
		storage.ObserveRedis("labels_get", start, nil)
		return []Label{}, nil
	}
	storage.ObserveRedis("labels_get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, url string, labels []Label) error {
	if err := checkURL(url); err != nil {
		return err
	}
	if err := checkAll(labels); err != nil {
		return err
	}
	if labels == nil {
		labels = []Label{}
	}

	data, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	start := time.Now()
	err = s.client.Set(ctx, Key(url), data, 0).Err()
	storage.ObserveRedis("labels_set", start, err)
	if err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}

// Add appends under WATCH so concurrent writers to the same image never lose
// a label; a conflicting write retries.
func (s *RedisStore) Add(ctx context.Context, url string, label Label) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	if err := label.Validate(); err != nil {
		return nil, err
	}

	key := Key(url)
	var out []Label
	txf := func(tx *redis.Tx) error {
		labels := []Label{}
		data, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if labels, err = decode(data); err != nil {
				return err
			}
		}

		labels = append(labels, label)
		encoded, err := json.Marshal(labels)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err == nil {
			out = labels
		}
		return err
	}

	start := time.Now()
	var err error
	for i := 0; i < maxAddRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	storage.ObserveRedis("labels_add", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to add label: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return nil
}
