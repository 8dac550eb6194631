package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/utils"
)

// eventDetail is the EventBridge detail object for an EC2 instance
// state-change notification.
type eventDetail struct {
	InstanceID string `json:"instance-id"`
	State      string `json:"state"`
}

// HandleLambda adapts an EventBridge envelope to the pipeline. It is the
// entry point both for the Lambda runtime and for the HTTP intake, which
// accepts the same envelope shape.
func (h *Handler) HandleLambda(ctx context.Context, event events.CloudWatchEvent) error {
	var detail eventDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return fmt.Errorf("parse event detail: %w", err)
	}
	if detail.InstanceID == "" || detail.State == "" {
		return errors.New("event detail missing instance-id or state")
	}

	region := event.Region
	if region == "" {
		region = utils.GetDefaultRegion()
	}

	return h.Handle(ctx, models.StateChangeEvent{
		InstanceID: detail.InstanceID,
		State:      detail.State,
		Region:     region,
	})
}
