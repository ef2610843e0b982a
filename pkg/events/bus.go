package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	metadataOccurredAt = "occurred_at"
	forwardTimeout     = 5 * time.Second
)

// Bus is the in-process event bus. Each event type is its own topic.
// Events can additionally be forwarded to out-of-process publishers.
type Bus struct {
	pubSub *gochannel.GoChannel

	mu         sync.RWMutex
	forwarders []Publisher
	onError    func(err error)
}

func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
	}
}

// Forward mirrors every published event to p.
func (b *Bus) Forward(p Publisher) {
	if p == nil {
		return
	}
	b.mu.Lock()
	b.forwarders = append(b.forwarders, p)
	b.mu.Unlock()
}

// OnForwardError sets the hook called when a forwarder rejects an event.
func (b *Bus) OnForwardError(fn func(err error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataOccurredAt, event.Timestamp().Format(time.RFC3339Nano))
	if err := b.pubSub.Publish(event.EventType(), msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}

	b.mu.RLock()
	forwarders := append([]Publisher(nil), b.forwarders...)
	onError := b.onError
	b.mu.RUnlock()

	for _, f := range forwarders {
		go func(p Publisher) {
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
			defer cancel()
			if err := p.Publish(fctx, event); err != nil && onError != nil {
				onError(err)
			}
		}(f)
	}
	return nil
}

// Subscribe delivers decoded events of one type until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, eventType string) (<-chan Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, eventType)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			evt := decode(eventType, msg)
			msg.Ack()
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

func decode(eventType string, msg *message.Message) BaseEvent {
	evt := BaseEvent{Type: eventType, Data: map[string]interface{}{}}
	_ = json.Unmarshal(msg.Payload, &evt.Data)
	if ts, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(metadataOccurredAt)); err == nil {
		evt.OccurredAt = ts
	}
	return evt
}
