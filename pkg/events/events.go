// Package events carries post-commit result notifications between server
// instances over Redis pub/sub. Events are notifications only: readers always
// go back to the database for the authoritative score.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	TypeResultUpdated = "result.updated"

	channelPattern = "exam:*:results"
)

type ResultEvent struct {
	Type      string    `json:"type"`
	ResultID  uint      `json:"result_id"`
	ExamID    uint      `json:"exam_id"`
	StudentID uint      `json:"student_id"`
	Score     float64   `json:"score"`
	At        time.Time `json:"at"`
}

// Publisher is what the scoring engine needs after a commit.
type Publisher interface {
	PublishResult(ctx context.Context, ev ResultEvent) error
}

// Nop drops every event. Used when no Redis address is configured.
type Nop struct{}

func (Nop) PublishResult(context.Context, ResultEvent) error { return nil }

// Channel is the Redis channel for one exam's result events.
func Channel(examID uint) string {
	return "exam:" + strconv.FormatUint(uint64(examID), 10) + ":results"
}

// ExamFromChannel is the inverse of Channel.
func ExamFromChannel(channel string) (uint, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "exam" || parts[2] != "results" {
		return 0, fmt.Errorf("not a result channel: %q", channel)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse exam id from %q", channel)
	}
	return uint(id), nil
}

type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(addr string) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisBus{client: client}
}

// Ping verifies the connection at startup.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) PublishResult(ctx context.Context, ev ResultEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal result event")
	}
	return b.client.Publish(ctx, Channel(ev.ExamID), data).Err()
}

// Subscribe delivers every result event to handle until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, handle func(ResultEvent)) error {
	sub := b.client.PSubscribe(ctx, channelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe to result events")
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ResultEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handle(ev)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
