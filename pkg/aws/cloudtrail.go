package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"go.uber.org/zap"

	"github.com/haneul-ops/ec2notify/internal/models"
)

const (
	// DefaultLookbackDays bounds how far back the CloudTrail scan goes.
	DefaultLookbackDays = 7

	// lookupPageSize is a hint to the LookupEvents API; the service may
	// return fewer records per page.
	lookupPageSize = 50
)

// CloudTrailClient resolves which IAM identity caused an instance state
// transition by scanning the CloudTrail event history.
type CloudTrailClient struct {
	client cloudtrail.LookupEventsAPIClient
	region string
	logger *zap.Logger
}

// NewCloudTrailClient creates a new CloudTrailClient
func NewCloudTrailClient(region string, logger *zap.Logger) (*CloudTrailClient, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CloudTrailClient{
		client: cloudtrail.NewFromConfig(cfg),
		region: region,
		logger: logger,
	}, nil
}

// NewCloudTrailClientFromAPI wraps an existing API implementation. Used by tests.
func NewCloudTrailClientFromAPI(api cloudtrail.LookupEventsAPIClient, region string, logger *zap.Logger) *CloudTrailClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudTrailClient{client: api, region: region, logger: logger}
}

// eventNamesForState maps a lifecycle state to the CloudTrail event names
// that can produce it. A "running" instance may come from a fresh launch or
// a restart, so both API calls are scanned.
func eventNamesForState(state models.State) ([]string, error) {
	switch state {
	case models.StateRunning:
		return []string{"RunInstances", "StartInstances"}, nil
	case models.StateStopping:
		return []string{"StopInstances"}, nil
	case models.StateTerminated:
		return []string{"TerminateInstances"}, nil
	default:
		return nil, &models.UnsupportedStateError{State: string(state)}
	}
}

// ResolveActor scans CloudTrail for the event that moved instanceID into
// state and returns who performed it. The first record naming the instance
// wins, in the order the service yields them (newest first in practice).
// A nil ActorInfo with a nil error means the transition could not be
// attributed within the lookback window.
//
// A failed page fetch only truncates the scan for that event name; other
// event names are still tried. Malformed records are logged and skipped.
func (c *CloudTrailClient) ResolveActor(ctx context.Context, instanceID string, state models.State, lookbackDays int) (*models.ActorInfo, error) {
	eventNames, err := eventNamesForState(state)
	if err != nil {
		return nil, err
	}

	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	endTime := time.Now().UTC()
	startTime := endTime.AddDate(0, 0, -lookbackDays)

	for _, eventName := range eventNames {
		actor, err := c.scanEventName(ctx, eventName, instanceID, startTime, endTime)
		if err != nil {
			c.logger.Warn("CloudTrail lookup failed, skipping event name",
				zap.String("event_name", eventName),
				zap.String("instance_id", instanceID),
				zap.Error(err))
			continue
		}
		if actor != nil {
			return actor, nil
		}
	}

	return nil, nil
}

// scanEventName walks all pages for one event name and returns the first
// record that names the instance and carries a usable identity.
func (c *CloudTrailClient) scanEventName(ctx context.Context, eventName, instanceID string, startTime, endTime time.Time) (*models.ActorInfo, error) {
	input := &cloudtrail.LookupEventsInput{
		LookupAttributes: []cttypes.LookupAttribute{
			{
				AttributeKey:   cttypes.LookupAttributeKeyEventName,
				AttributeValue: aws.String(eventName),
			},
		},
		StartTime:  aws.Time(startTime),
		EndTime:    aws.Time(endTime),
		MaxResults: aws.Int32(lookupPageSize),
	}

	paginator := cloudtrail.NewLookupEventsPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error looking up %s events: %w", eventName, err)
		}

		for _, record := range page.Events {
			actor, ok := c.matchRecord(record, instanceID)
			if ok {
				return actor, nil
			}
		}
	}

	return nil, nil
}

// trailEvent is the subset of the embedded CloudTrail event payload needed
// to match an instance and attribute the call.
type trailEvent struct {
	UserIdentity struct {
		Type           string `json:"type"`
		ARN            string `json:"arn"`
		AccountID      string `json:"accountId"`
		UserName       string `json:"userName"`
		SessionContext struct {
			SessionIssuer struct {
				ARN string `json:"arn"`
			} `json:"sessionIssuer"`
		} `json:"sessionContext"`
	} `json:"userIdentity"`
	ResponseElements  *instancesSection `json:"responseElements"`
	RequestParameters *instancesSection `json:"requestParameters"`
}

type instancesSection struct {
	InstancesSet struct {
		Items []struct {
			InstanceID string `json:"instanceId"`
		} `json:"items"`
	} `json:"instancesSet"`
}

func (s *instancesSection) instanceIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.InstancesSet.Items))
	for _, item := range s.InstancesSet.Items {
		if item.InstanceID != "" {
			ids = append(ids, item.InstanceID)
		}
	}
	return ids
}

// matchRecord reports whether one CloudTrail record attributes the state
// change of instanceID. Records without a parseable payload or without an
// identity ARN never match.
func (c *CloudTrailClient) matchRecord(record cttypes.Event, instanceID string) (*models.ActorInfo, bool) {
	payload := aws.ToString(record.CloudTrailEvent)
	if payload == "" {
		return nil, false
	}

	var evt trailEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		c.logger.Warn("skipping unparseable CloudTrail record",
			zap.String("event_id", aws.ToString(record.EventId)),
			zap.Error(err))
		return nil, false
	}

	// Some event types (StartInstances, StopInstances) only carry the
	// instance list in responseElements; others (TerminateInstances issued
	// asynchronously) only in requestParameters. Check response first and
	// fall back to the request side when it is empty.
	ids := evt.ResponseElements.instanceIDs()
	if len(ids) == 0 {
		ids = evt.RequestParameters.instanceIDs()
	}

	found := false
	for _, id := range ids {
		if id == instanceID {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	// A match without an identity ARN is useless for attribution; keep
	// scanning instead of returning a partial record.
	if evt.UserIdentity.ARN == "" {
		return nil, false
	}

	eventTime := time.Now().UTC()
	if record.EventTime != nil {
		eventTime = record.EventTime.UTC()
	}

	return &models.ActorInfo{
		EventTime: eventTime,
		ARN:       evt.UserIdentity.ARN,
		Label:     actorLabel(evt),
	}, true
}

// actorLabel derives a display name for the caller. IAM users carry a
// userName directly; role sessions and federated identities need the name
// dug out of an ARN.
func actorLabel(evt trailEvent) string {
	identity := evt.UserIdentity

	if identity.UserName != "" {
		return identity.UserName
	}

	if issuer := identity.SessionContext.SessionIssuer.ARN; issuer != "" {
		return fmt.Sprintf("%s (AssumedRole)", arnResourceName(issuer))
	}

	switch identity.Type {
	case "AssumedRole":
		// arn:aws:sts::<account>:assumed-role/<role>/<session>
		if _, path, ok := strings.Cut(identity.ARN, "/"); ok {
			return fmt.Sprintf("%s (AssumedRole)", path)
		}
		return fmt.Sprintf("%s (AssumedRole)", arnResourceName(identity.ARN))
	case "FederatedUser":
		return fmt.Sprintf("%s (Federated)", arnResourceName(identity.ARN))
	case "AWSAccount":
		return fmt.Sprintf("Account:%s", identity.AccountID)
	}

	if identity.Type != "" {
		return identity.Type
	}
	return "Unknown identity"
}

// arnResourceName returns the final path element of an ARN, e.g.
// "arn:aws:iam::123456789012:role/MyRole" -> "MyRole".
func arnResourceName(arn string) string {
	if idx := strings.LastIndex(arn, "/"); idx >= 0 {
		return arn[idx+1:]
	}
	if idx := strings.LastIndex(arn, ":"); idx >= 0 {
		return arn[idx+1:]
	}
	return arn
}
