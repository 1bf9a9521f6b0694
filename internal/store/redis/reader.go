package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"tickdata/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "indicators"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader serves cached quotes and bar history from Redis, and consumes
// bar streams via consumer groups for downstream processors.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "indicators"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// LatestQuote returns the cached quote for an instrument, or nil when
// the cache entry has expired or never existed.
func (r *Reader) LatestQuote(ctx context.Context, exchange model.Exchange, symbol string) (*model.Quote, error) {
	key := "quote:latest:" + string(exchange) + ":" + symbol
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}

	var q model.Quote
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	return &q, nil
}

// RecentBars reads up to count most-recent bars from a bar stream,
// ascending by timestamp.
func (r *Reader) RecentBars(ctx context.Context, exchange model.Exchange, symbol string,
	interval model.Interval, count int64) ([]model.Bar, error) {

	streamKey := "bar:" + string(interval) + ":" + string(exchange) + ":" + symbol
	msgs, err := r.client.XRevRangeN(ctx, streamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", streamKey, err)
	}

	// XREVRANGE returns newest first; reverse into chronological order.
	bars := make([]model.Bar, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		b, ok := parseBarMessage(msgs[i])
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// EnsureConsumerGroup creates the consumer group on the given streams
// if it doesn't exist, starting at "$" (new messages only).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeBars reads bars from the given streams via the consumer group
// and sends them to out. Blocks on XREADGROUP; returns when ctx is
// cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Bar) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] XREADGROUP error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				b, ok := parseBarMessage(msg)
				if ok {
					select {
					case out <- b:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

func parseBarMessage(msg goredis.XMessage) (model.Bar, bool) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return model.Bar{}, false
	}
	var b model.Bar
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		log.Printf("[redis-reader] bad bar payload at %s: %v", msg.ID, err)
		return model.Bar{}, false
	}
	return b, true
}

// Client exposes the underlying connection for callers that need raw
// PubSub access.
func (r *Reader) Client() *goredis.Client {
	return r.client
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}
