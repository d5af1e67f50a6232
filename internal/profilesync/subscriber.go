package profilesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

// ProfileHandler receives every decoded profile update.
// *tracker.Controller's UpdateAthleteProfile fits.
type ProfileHandler func(tracker.ProfileUpdate)

// Subscriber listens for profile updates from the companion app. With a nil
// client it does nothing.
type Subscriber struct {
	redis    *redis.Client
	deviceID string
	handler  ProfileHandler
	logger   *log.Logger

	mu       sync.Mutex
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewSubscriber(client *redis.Client, deviceID string, handler ProfileHandler, logger *log.Logger) *Subscriber {
	if handler == nil {
		panic("ProfileSubscriber: handler cannot be nil")
	}
	if logger == nil {
		panic("ProfileSubscriber: logger cannot be nil")
	}
	return &Subscriber{
		redis:    client,
		deviceID: deviceID,
		handler:  handler,
		logger:   logger,
	}
}

// Start subscribes and returns once Redis has confirmed the subscription.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.redis == nil {
		s.logger.Printf("ProfileSubscriber: No Redis configured, companion sync disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		return errors.New("profile subscriber already started")
	}

	channel := profileChannel(s.deviceID)
	pubsub := s.redis.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s.pubsub = pubsub

	ctx, s.cancel = context.WithCancel(ctx)
	go_func_utils.SafeGoGroup(s.logger, &s.wg, func() {
		s.run(ctx, pubsub)
	})
	s.logger.Printf("ProfileSubscriber: Listening on %s", channel)
	return nil
}

// Stop closes the subscription.
// Safe to call multiple times.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		pubsub, cancel := s.pubsub, s.cancel
		s.mu.Unlock()
		if pubsub == nil {
			return
		}
		cancel()
		if err := pubsub.Close(); err != nil {
			s.logger.Printf("ProfileSubscriber: Error closing subscription: %v", err)
		}
		s.wg.Wait()
	})
}

func (s *Subscriber) run(ctx context.Context, pubsub *redis.PubSub) {
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handlePayload([]byte(msg.Payload))
		}
	}
}

func (s *Subscriber) handlePayload(payload []byte) {
	update, err := DecodeProfileUpdate(payload)
	if err != nil {
		s.logger.Printf("ProfileSubscriber: Skipping payload %q: %v", payload, err)
		return
	}
	s.handler(update)
}
