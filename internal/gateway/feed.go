package gateway

import (
	"context"
	"log"
	"strings"

	"tickdata/internal/model"
	redisstore "tickdata/internal/store/redis"
)

// Feed pumps live market data from Redis into the hub. Finalized bars
// come through the bar streams via a consumer group, so a gateway
// restart resumes without losing bars. Indicator results and quotes are
// ephemeral and come through PubSub.
type Feed struct {
	reader *redisstore.Reader
	hub    *Hub
}

// NewFeed creates a feed for the given instrument/interval set.
func NewFeed(reader *redisstore.Reader, hub *Hub) *Feed {
	return &Feed{reader: reader, hub: hub}
}

// Run consumes until ctx is cancelled. streams is the set of bar stream
// keys to follow, e.g. "bar:1m:NSE:RELIANCE".
func (f *Feed) Run(ctx context.Context, streams []string) error {
	if err := f.reader.EnsureConsumerGroup(ctx, streams); err != nil {
		return err
	}

	barCh := make(chan model.Bar, 1000)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-barCh:
				if !ok {
					return
				}
				f.hub.Broadcast(bar.StreamKey(), bar.JSON())
			}
		}
	}()

	go f.runPubSub(ctx)

	log.Printf("[gateway] consuming %d bar streams", len(streams))
	return f.reader.ConsumeBars(ctx, streams, barCh)
}

// runPubSub relays indicator and quote publications to the hub. The
// writer publishes on "pub:"-prefixed channels; the topic seen by
// clients is the channel without that prefix.
func (f *Feed) runPubSub(ctx context.Context) {
	pubsub := f.reader.Client().PSubscribe(ctx, "pub:ind:*", "pub:quote:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, "pub:")
			f.hub.Broadcast(topic, []byte(msg.Payload))
		}
	}
}

// Instrument identifies one symbol on an exchange.
type Instrument struct {
	Symbol   string
	Exchange model.Exchange
}

// BarStreams builds the stream key set for a set of instruments and
// intervals.
func BarStreams(instruments []Instrument, intervals []model.Interval) []string {
	streams := make([]string, 0, len(instruments)*len(intervals))
	for _, inst := range instruments {
		for _, iv := range intervals {
			b := model.Bar{Symbol: inst.Symbol, Exchange: inst.Exchange, Interval: iv}
			streams = append(streams, b.StreamKey())
		}
	}
	return streams
}
