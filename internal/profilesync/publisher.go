package profilesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

const (
	EventAlert    = "alert"
	EventRecorded = "gel_recorded"
)

// EventMessage is what the companion app receives on the events channel.
type EventMessage struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	SessionID      string    `json:"session_id"`
	Reason         string    `json:"reason,omitempty"`
	Source         string    `json:"source,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	SentAt         time.Time `json:"sent_at"`
}

// EventSource is the part of *tracker.Controller the publisher listens to.
type EventSource interface {
	ListenToAlerts(ch chan<- tracker.Alert) func()
	ListenToTransitions(ch chan<- tracker.Transition) func()
}

// Publisher sends alerts and recorded gels to the companion app. With a nil
// client every publish is a no-op.
type Publisher struct {
	redis    *redis.Client
	deviceID string
	logger   *log.Logger
	now      func() time.Time
}

func NewPublisher(client *redis.Client, deviceID string, logger *log.Logger) *Publisher {
	if logger == nil {
		panic("EventPublisher: logger cannot be nil")
	}
	return &Publisher{
		redis:    client,
		deviceID: deviceID,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Publisher) PublishAlert(ctx context.Context, alert tracker.Alert) error {
	return p.publish(ctx, EventMessage{
		Type:           EventAlert,
		SessionID:      alert.SessionID,
		Reason:         alert.Reason.String(),
		ElapsedSeconds: alert.RaisedAtElapsedSeconds,
	})
}

// PublishTransition publishes recorded gels. Other transitions stay on the
// watch.
func (p *Publisher) PublishTransition(ctx context.Context, transition tracker.Transition) error {
	if transition.Kind != tracker.TransitionRecorded {
		return nil
	}
	return p.publish(ctx, EventMessage{
		Type:           EventRecorded,
		SessionID:      transition.SessionID,
		Source:         transition.Source.String(),
		ElapsedSeconds: transition.ElapsedSeconds,
	})
}

func (p *Publisher) publish(ctx context.Context, msg EventMessage) error {
	if p.redis == nil {
		return nil
	}
	msg.EventID = uuid.NewString()
	msg.SentAt = p.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Type, err)
	}
	if err := p.redis.Publish(ctx, eventsChannel(p.deviceID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", msg.Type, err)
	}
	return nil
}

// Forward publishes everything src emits until ctx is done or the returned
// stop function is called.
func (p *Publisher) Forward(ctx context.Context, src EventSource) func() {
	alerts := make(chan tracker.Alert, 8)
	transitions := make(chan tracker.Transition, 16)
	unregisterAlerts := src.ListenToAlerts(alerts)
	unregisterTransitions := src.ListenToTransitions(transitions)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	go_func_utils.SafeGoGroup(p.logger, &wg, func() {
		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case alert := <-alerts:
				err = p.PublishAlert(ctx, alert)
			case transition := <-transitions:
				err = p.PublishTransition(ctx, transition)
			}
			if err != nil {
				p.logger.Printf("EventPublisher: %v", err)
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unregisterAlerts()
			unregisterTransitions()
			cancel()
			wg.Wait()
		})
	}
}
