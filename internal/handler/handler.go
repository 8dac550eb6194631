// Package handler sequences the notification pipeline for one instance
// state-change event: fetch instance metadata, attribute the change via
// CloudTrail, render a Slack message, deliver it.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/slack"
)

// MetadataFetcher describes an instance for the notification.
type MetadataFetcher interface {
	GetInstanceInfo(ctx context.Context, instanceID string) (models.InstanceInfo, error)
}

// ActorResolver attributes a state change to an identity. A (nil, nil)
// return means the change could not be attributed.
type ActorResolver interface {
	ResolveActor(ctx context.Context, instanceID string, state models.State, lookbackDays int) (*models.ActorInfo, error)
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg *goslack.WebhookMessage) error
}

// Clients are the region-bound AWS collaborators for one event.
type Clients struct {
	Metadata MetadataFetcher
	Resolver ActorResolver
}

// ClientFactory builds clients for the region an event came from. Events
// carry their own region, so clients cannot be constructed up front.
type ClientFactory func(region string) (Clients, error)

// Handler runs the pipeline. It is safe for sequential reuse across events;
// no state is kept between invocations.
type Handler struct {
	newClients   ClientFactory
	sender       Sender
	builder      *slack.MessageBuilder
	lookbackDays int
	logger       *zap.Logger
}

// New wires a Handler. The sender must already be configured; a nil sender
// is a configuration error, reported here so nothing is half-constructed.
func New(factory ClientFactory, sender Sender, builder *slack.MessageBuilder, lookbackDays int, logger *zap.Logger) (*Handler, error) {
	if factory == nil {
		return nil, errors.New("handler: client factory is required")
	}
	if sender == nil {
		return nil, errors.New("handler: sender is required")
	}
	if builder == nil {
		return nil, errors.New("handler: message builder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		newClients:   factory,
		sender:       sender,
		builder:      builder,
		lookbackDays: lookbackDays,
		logger:       logger,
	}, nil
}

// Handle processes one state-change event end to end. Unsupported states,
// metadata failures and delivery failures propagate; an unattributed actor
// does not, it renders as "Unknown".
func (h *Handler) Handle(ctx context.Context, event models.StateChangeEvent) error {
	state, err := models.ParseState(event.State)
	if err != nil {
		notificationsTotal.WithLabelValues(event.State, "unsupported_state").Inc()
		return err
	}

	logger := h.logger.With(
		zap.String("instance_id", event.InstanceID),
		zap.String("region", event.Region),
		zap.String("state", string(state)),
	)

	clients, err := h.newClients(event.Region)
	if err != nil {
		notificationsTotal.WithLabelValues(string(state), "error").Inc()
		return fmt.Errorf("create clients for region %s: %w", event.Region, err)
	}

	instance, err := clients.Metadata.GetInstanceInfo(ctx, event.InstanceID)
	if err != nil {
		notificationsTotal.WithLabelValues(string(state), "error").Inc()
		return fmt.Errorf("fetch instance metadata: %w", err)
	}

	actor, err := clients.Resolver.ResolveActor(ctx, event.InstanceID, state, h.lookbackDays)
	if err != nil {
		actorResolutionTotal.WithLabelValues("error").Inc()
		notificationsTotal.WithLabelValues(string(state), "error").Inc()
		return fmt.Errorf("resolve actor: %w", err)
	}
	if actor == nil {
		actorResolutionTotal.WithLabelValues("unattributed").Inc()
		logger.Info("state change could not be attributed, sending unattributed notification")
	} else {
		actorResolutionTotal.WithLabelValues("attributed").Inc()
		logger.Info("state change attributed", zap.String("actor", actor.Label))
	}

	msg := h.builder.Build(instance, actor, string(state), event.Region, event.InstanceID)

	start := time.Now()
	err = h.sender.Send(ctx, msg)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		notificationsTotal.WithLabelValues(string(state), "delivery_failed").Inc()
		return fmt.Errorf("deliver notification: %w", err)
	}

	notificationsTotal.WithLabelValues(string(state), "delivered").Inc()
	logger.Info("notification delivered")
	return nil
}
