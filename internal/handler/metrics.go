package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec2notify_notifications_total",
		Help: "Notification pipeline outcomes by instance state and status.",
	}, []string{"state", "status"})

	actorResolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec2notify_actor_resolution_total",
		Help: "CloudTrail actor resolution outcomes.",
	}, []string{"outcome"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec2notify_delivery_duration_seconds",
		Help:    "Time spent delivering a message to the Slack webhook.",
		Buckets: prometheus.DefBuckets,
	})
)
