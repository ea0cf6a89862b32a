package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

const (
	historyKey    = "alerts:history"
	labelCountKey = "alerts:counts"
	alertsChannel = "alerts"
)

// AlertHistory keeps accepted feed alerts in Redis beyond the 5 second
// display window
type AlertHistory struct {
	client *redis.Client
	limit  int64
}

func NewAlertHistory(addr string, password string, db int, limit int) (*AlertHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if limit <= 0 {
		limit = 500
	}

	return &AlertHistory{
		client: client,
		limit:  int64(limit),
	}, nil
}

// StoreAlert records an alert scored by its receive time and trims the
// history to the newest entries
func (r *AlertHistory) StoreAlert(ctx context.Context, event models.AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()

	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(event.ReceivedAt.UnixMilli()),
		Member: string(data),
	})

	// Keep only the newest entries
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -(r.limit + 1))

	pipe.HIncrBy(ctx, labelCountKey, event.Label, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first
func (r *AlertHistory) RecentAlerts(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := r.client.ZRevRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]models.AlertEvent, 0, len(results))
	for _, result := range results {
		var event models.AlertEvent
		if err := json.Unmarshal([]byte(result), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// LabelCounts returns how many alerts were stored per label
func (r *AlertHistory) LabelCounts(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, labelCountKey).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(raw))
	for label, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[label] = n
	}
	return counts, nil
}

// PublishAlert publishes an alert to subscribers
func (r *AlertHistory) PublishAlert(ctx context.Context, event models.AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, alertsChannel, string(data)).Err()
}

// Subscribe streams alerts published on the alerts channel. The channel
// closes when ctx ends.
func (r *AlertHistory) Subscribe(ctx context.Context) (<-chan models.AlertEvent, error) {
	sub := r.client.Subscribe(ctx, alertsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", alertsChannel, err)
	}

	out := make(chan models.AlertEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.AlertEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection
func (r *AlertHistory) Close() error {
	return r.client.Close()
}
