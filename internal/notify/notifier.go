package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/redis/go-redis/v9"
)

// InboxSize is how many recent notifications are kept per owner.
const InboxSize = 20

// envelope is the pub/sub wire format.
type envelope struct {
	OwnerID      string              `json:"owner_id"`
	Notification models.Notification `json:"notification"`
}

// Notifier delivers notifications to connected clients and keeps a short inbox per owner.
//
// Without redis everything stays in process. With redis, Publish goes through the pub/sub
// channel so every instance running [Notifier.RunSubscriber] delivers to its own clients,
// and the inbox is a capped redis list.
type Notifier struct {
	hub     *Hub
	rdb     *redis.Client
	channel string
	prefix  string
	logger  *log.Logger

	mu    sync.Mutex
	inbox map[string][]models.Notification
}

// NewNotifier creates a notifier. rdb may be nil.
func NewNotifier(hub *Hub, rdb *redis.Client, cfg shared.RedisConfig, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "nma:notifications"
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "nma"
	}
	return &Notifier{
		hub:     hub,
		rdb:     rdb,
		channel: channel,
		prefix:  prefix,
		logger:  shared.WithLogger(logger, "component", "notify"),
		inbox:   make(map[string][]models.Notification),
	}
}

func (n *Notifier) inboxKey(ownerID string) string {
	return fmt.Sprintf("%s:notifications:%s", n.prefix, ownerID)
}

// Publish records n in ownerID's inbox and delivers it to every connected client of that owner.
func (n *Notifier) Publish(ctx context.Context, ownerID string, note models.Notification) error {
	if ownerID == "" {
		return fmt.Errorf("%w: missing owner", shared.ErrInvalidInput)
	}
	if note.CreatedAt == "" {
		note.CreatedAt = shared.Now()
	}

	if err := n.remember(ctx, ownerID, note); err != nil {
		return err
	}

	if n.rdb == nil {
		return n.deliver(ctx, ownerID, note)
	}

	data, err := json.Marshal(envelope{OwnerID: ownerID, Notification: note})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: failed to publish notification: %v", shared.ErrServiceUnavailable, err)
	}
	n.logger.Debug("notification published", "owner", ownerID, "channel", n.channel)
	return nil
}

func (n *Notifier) deliver(ctx context.Context, ownerID string, note models.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return n.hub.Deliver(ctx, ownerID, data)
}

func (n *Notifier) remember(ctx context.Context, ownerID string, note models.Notification) error {
	if n.rdb == nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		list := append([]models.Notification{note}, n.inbox[ownerID]...)
		if len(list) > InboxSize {
			list = list[:InboxSize]
		}
		n.inbox[ownerID] = list
		return nil
	}

	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	key := n.inboxKey(ownerID)
	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, InboxSize-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store notification: %v", shared.ErrServiceUnavailable, err)
	}
	return nil
}

// Recent returns ownerID's notifications, newest first.
func (n *Notifier) Recent(ctx context.Context, ownerID string) ([]models.Notification, error) {
	if n.rdb == nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		return append([]models.Notification{}, n.inbox[ownerID]...), nil
	}

	raw, err := n.rdb.LRange(ctx, n.inboxKey(ownerID), 0, InboxSize-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read notifications: %v", shared.ErrServiceUnavailable, err)
	}

	notes := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var note models.Notification
		if err := json.Unmarshal([]byte(item), &note); err != nil {
			n.logger.Warn("skipping corrupt notification", "owner", ownerID, "error", err)
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// RunSubscriber relays pub/sub messages to the local hub until ctx is done.
// Without redis it only waits for ctx.
func (n *Notifier) RunSubscriber(ctx context.Context) error {
	if n.rdb == nil {
		<-ctx.Done()
		return nil
	}

	sub := n.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: failed to subscribe: %v", shared.ErrServiceUnavailable, err)
	}
	n.logger.Info("subscribed to notifications", "channel", n.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				n.logger.Warn("dropping malformed notification", "error", err)
				continue
			}
			if err := n.deliver(ctx, env.OwnerID, env.Notification); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				n.logger.Warn("failed to deliver notification", "owner", env.OwnerID, "error", err)
			}
		}
	}
}
