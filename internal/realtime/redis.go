package realtime

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedis creates a new Redis client.
func NewRedis(addr string) *redis.Client {
	redisPassword := os.Getenv("REDIS_PASSWORD")

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisPassword,
		DB:       0,
	})

	log.Printf("Redis client created (addr: %s)", addr)
	return rdb
}

const relayPrefix = "chat:relay:"

// Bridge propagates hub envelopes between backend instances over Redis
// pub/sub. Forward publishes an envelope addressed to a user; Listen delivers
// relayed envelopes to locally connected clients.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	b := &Bridge{rdb: rdb, hub: hub}
	hub.SetBridge(b)
	return b
}

// Forward hands an envelope to whichever instance holds the user's connection.
func (b *Bridge) Forward(userID uuid.UUID, topic string, data interface{}) {
	payload, err := json.Marshal(Envelope{Topic: topic, Data: data})
	if err != nil {
		log.Printf("Error marshaling relay envelope: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), relayPrefix+userID.String(), payload).Err(); err != nil {
		log.Printf("Error publishing relay envelope: %v", err)
	}
}

// Listen consumes relayed envelopes and pushes them to local connections.
// Blocks; run in its own goroutine.
func (b *Bridge) Listen(ctx context.Context) {
	sub := b.rdb.PSubscribe(ctx, relayPrefix+"*")
	defer sub.Close()

	for msg := range sub.Channel() {
		rawID := strings.TrimPrefix(msg.Channel, relayPrefix)
		userID, err := uuid.Parse(rawID)
		if err != nil {
			log.Printf("Relay channel with bad user id: %s", msg.Channel)
			continue
		}

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("Error decoding relay envelope: %v", err)
			continue
		}
		b.hub.SendToUser(userID, env.Topic, env.Data)
	}
}
