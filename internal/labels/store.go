package labels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrInvalidLabel = errors.New("invalid label")
	ErrNoURL        = errors.New("image url is required")
)

// Label is a point of interest in image pixel coordinates.
type Label struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text"`
}

func (l Label) Validate() error {
	if strings.TrimSpace(l.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidLabel)
	}
	for _, v := range []float64{l.X, l.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinate %v", ErrInvalidLabel, v)
		}
	}
	return nil
}

// Store keeps the labels of each image, keyed by the image URL. A URL with no
// labels reads as an empty list.
type Store interface {
	Get(ctx context.Context, url string) ([]Label, error)
	Save(ctx context.Context, url string, labels []Label) error
	Add(ctx context.Context, url string, label Label) ([]Label, error)
	Close() error
}

// Key is the storage key for an image's labels.
func Key(url string) string {
	return "labels_" + url
}

func checkURL(url string) error {
	if url == "" {
		return ErrNoURL
	}
	return nil
}

func checkAll(labels []Label) error {
	for _, l := range labels {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type Options struct {
	Type       string
	SQLitePath string
	Redis      *redis.Client
}

func NewStore(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	switch opts.Type {
	case "memory":
		log.Info("Using memory label store")
		return NewMemoryStore(), nil
	case "sqlite":
		log.Info("Using sqlite label store", zap.String("path", opts.SQLitePath))
		s, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis label store selected without a redis client")
		}
		log.Info("Using redis label store")
		return NewRedisStore(opts.Redis), nil
	default:
		return nil, fmt.Errorf("unknown label store: %s (supported: memory, sqlite, redis)", opts.Type)
	}
}
