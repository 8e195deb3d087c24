package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/redis"
)

// Item is one product line in a cart. Every line carries its own delivery
// date and time slot; a buyer can order bouquets for different days in one
// checkout.
type Item struct {
	ProductID    uuid.UUID `json:"product_id"`
	Quantity     int       `json:"quantity"`
	DeliveryDate time.Time `json:"delivery_date"`
	DeliverySlot string    `json:"delivery_slot"`
}

// Cart is the serialized document stored per owner.
type Cart struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Find returns the index of the item holding productID, or -1.
func (c *Cart) Find(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Store persists cart documents keyed by owner.
type Store interface {
	Get(ctx context.Context, ownerKey string) (*Cart, error)
	Save(ctx context.Context, ownerKey string, cart *Cart) error
	Clear(ctx context.Context, ownerKey string) error
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a cart store writing JSON documents with the
// configured TTL. Every save refreshes the TTL.
func NewRedisStore(client *redis.Client, cfg config.CartConfig) (Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &redisStore{client: client, ttl: ttl}, nil
}

func (s *redisStore) Get(ctx context.Context, ownerKey string) (*Cart, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(ownerKey))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("loading cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return &cart, nil
}

func (s *redisStore) Save(ctx context.Context, ownerKey string, cart *Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	return s.client.Set(ctx, s.client.CartKey(ownerKey), string(raw), s.ttl)
}

func (s *redisStore) Clear(ctx context.Context, ownerKey string) error {
	return s.client.Del(ctx, s.client.CartKey(ownerKey))
}
