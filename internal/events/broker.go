package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trainerbook/scheduling-server-go/internal/redisclient"
)

const (
	HeartbeatInterval = 30 * time.Second

	clientBufferSize = 100
)

// Client is one subscriber's view of a trainer's event stream.
type Client struct {
	TrainerID string
	Events    chan Event
	Done      chan struct{}
}

// Broker fans lifecycle events out to subscribers. Events travel through
// Redis pub/sub so every server instance sees them; local subscribers are
// fed from buffered channels and slow consumers drop events rather than
// blocking the publisher.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // trainerID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(trainerID string) *Client {
	client := &Client{
		TrainerID: trainerID,
		Events:    make(chan Event, clientBufferSize),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[trainerID] == nil {
		b.clients[trainerID] = make(map[*Client]bool)
		go b.subscribeToRedis(trainerID)
	}
	b.clients[trainerID][client] = true
	clientCount := len(b.clients[trainerID])
	b.mu.Unlock()

	log.Info().
		Str("trainerId", trainerID).
		Int("clientCount", clientCount).
		Msg("event client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.TrainerID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.TrainerID)
		}

		log.Info().
			Str("trainerId", client.TrainerID).
			Int("clientCount", len(clients)).
			Msg("event client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, trainerID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.EventChannel(trainerID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(trainerID string) {
	channel := redisclient.EventChannel(trainerID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("trainerId", trainerID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(trainerID, event)
		}
	}
}

func (b *Broker) broadcast(trainerID string, event Event) {
	b.mu.RLock()
	clients := b.clients[trainerID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("trainerId", trainerID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for trainerID, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
		delete(b.clients, trainerID)
	}
}
