package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coinpulse/internal/application/port"
)

// Repo mirrors the latest price per symbol into a redis hash and pushes
// signal events to a stream plus a pubsub channel. It is a live-data
// sidecar, not the durable store.
type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	signalStream string
	signalChan   string
}

type LatestPrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Ts     int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "coinpulse"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		signalStream: prefix + ":signals",
		signalChan:   prefix + ":signals:pub",
	}
}

func (r *Repo) InsertPrice(ctx context.Context, symbol string, price, volume float64, ts time.Time) error {
	if price <= 0 {
		return nil
	}
	lp := LatestPrice{Symbol: symbol, Price: price, Volume: volume, Ts: ts.UnixMilli()}
	b, _ := json.Marshal(lp)

	// Hash: field = "BTC" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) Close() error { return r.rdb.Close() }

func (r *Repo) PublishSignal(ctx context.Context, sig port.Signal, event string) error {
	// 1) Stream: XADD <stream> * ...
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.signalStream,
		Values: map[string]any{
			"event":       event,
			"id":          sig.ID,
			"symbol":      sig.Symbol,
			"stop_loss":   sig.StopLoss,
			"target":      sig.Target,
			"entry_price": sig.EntryPrice,
			"exit_price":  sig.ExitPrice,
			"status":      sig.Status,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	msg, _ := json.Marshal(struct {
		Event string `json:"event"`
		port.Signal
	}{Event: event, Signal: sig})
	return r.rdb.Publish(ctx, r.signalChan, string(msg)).Err()
}

var _ port.PriceSink = (*Repo)(nil)
var _ port.SignalPublisher = (*Repo)(nil)
