package aws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haneul-ops/ec2notify/internal/models"
)

// fakeTrailAPI serves canned LookupEvents pages keyed by event name.
// NextToken is the index of the next page.
type fakeTrailAPI struct {
	pages map[string][]cloudtrail.LookupEventsOutput
	errs  map[string]error
	calls []string
}

func (f *fakeTrailAPI) LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
	name := aws.ToString(params.LookupAttributes[0].AttributeValue)
	f.calls = append(f.calls, name)

	if err := f.errs[name]; err != nil {
		return nil, err
	}

	idx := 0
	if params.NextToken != nil {
		idx, _ = strconv.Atoi(*params.NextToken)
	}
	pages := f.pages[name]
	if idx >= len(pages) {
		return &cloudtrail.LookupEventsOutput{}, nil
	}

	out := pages[idx]
	if idx+1 < len(pages) {
		out.NextToken = aws.String(strconv.Itoa(idx + 1))
	}
	return &out, nil
}

type identity struct {
	Type      string
	ARN       string
	AccountID string
	UserName  string
	IssuerARN string
}

// trailPayload builds the embedded CloudTrailEvent JSON for a record.
func trailPayload(t *testing.T, id identity, responseIDs, requestIDs []string) string {
	t.Helper()

	instanceSet := func(ids []string) map[string]interface{} {
		items := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]interface{}{"instanceId": id})
		}
		return map[string]interface{}{"instancesSet": map[string]interface{}{"items": items}}
	}

	userIdentity := map[string]interface{}{
		"type":      id.Type,
		"arn":       id.ARN,
		"accountId": id.AccountID,
	}
	if id.UserName != "" {
		userIdentity["userName"] = id.UserName
	}
	if id.IssuerARN != "" {
		userIdentity["sessionContext"] = map[string]interface{}{
			"sessionIssuer": map[string]interface{}{"arn": id.IssuerARN},
		}
	}

	payload := map[string]interface{}{"userIdentity": userIdentity}
	if responseIDs != nil {
		payload["responseElements"] = instanceSet(responseIDs)
	}
	if requestIDs != nil {
		payload["requestParameters"] = instanceSet(requestIDs)
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(raw)
}

func trailRecord(eventTime time.Time, payload string) cttypes.Event {
	return cttypes.Event{
		EventId:         aws.String("test-event"),
		EventTime:       aws.Time(eventTime),
		CloudTrailEvent: aws.String(payload),
	}
}

func page(records ...cttypes.Event) cloudtrail.LookupEventsOutput {
	return cloudtrail.LookupEventsOutput{Events: records}
}

func newTestClient(api *fakeTrailAPI) *CloudTrailClient {
	return NewCloudTrailClientFromAPI(api, "us-east-1", zap.NewNop())
}

func TestResolveActorUnsupportedState(t *testing.T) {
	client := newTestClient(&fakeTrailAPI{})

	_, err := client.ResolveActor(context.Background(), "i-abc123", models.State("pending"), 7)

	var unsupported *models.UnsupportedStateError
	require.Error(t, err)
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "pending", unsupported.State)
}

func TestResolveActorNoMatchReturnsNil(t *testing.T) {
	user := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/bob", UserName: "bob"}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"RunInstances":   {page(trailRecord(time.Now(), trailPayload(t, user, []string{"i-other"}, nil)))},
			"StartInstances": {page()},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateRunning, 7)

	require.NoError(t, err)
	assert.Nil(t, actor)
	// Both event names for "running" must have been scanned.
	assert.Contains(t, api.calls, "RunInstances")
	assert.Contains(t, api.calls, "StartInstances")
}

func TestResolveActorDirectUserName(t *testing.T) {
	eventTime := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	user := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/alice", UserName: "alice"}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"TerminateInstances": {page(trailRecord(eventTime, trailPayload(t, user, []string{"i-abc123"}, nil)))},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateTerminated, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "alice", actor.Label)
	assert.Equal(t, "arn:aws:iam::123456789012:user/alice", actor.ARN)
	assert.Equal(t, eventTime, actor.EventTime)
}

func TestResolveActorRequestParametersFallback(t *testing.T) {
	user := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/bob", UserName: "bob"}
	// Instance IDs only under requestParameters, response side empty.
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"StopInstances": {page(trailRecord(time.Now(), trailPayload(t, user, []string{}, []string{"i-abc123"})))},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateStopping, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "bob", actor.Label)
}

func TestResolveActorAssumedRoleLabel(t *testing.T) {
	role := identity{
		Type: "AssumedRole",
		ARN:  "arn:aws:sts::123456789012:assumed-role/MyRole/session-name",
	}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"TerminateInstances": {page(trailRecord(time.Now(), trailPayload(t, role, []string{"i-abc123"}, nil)))},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateTerminated, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "MyRole/session-name (AssumedRole)", actor.Label)
}

func TestResolveActorFirstMatchWins(t *testing.T) {
	first := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/first", UserName: "first"}
	second := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/second", UserName: "second"}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"TerminateInstances": {
				page(
					trailRecord(time.Now(), trailPayload(t, first, []string{"i-abc123"}, nil)),
					trailRecord(time.Now(), trailPayload(t, second, []string{"i-abc123"}, nil)),
				),
				page(trailRecord(time.Now(), trailPayload(t, second, []string{"i-abc123"}, nil))),
			},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateTerminated, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "first", actor.Label)
	// The second page must never have been fetched.
	assert.Len(t, api.calls, 1)
}

func TestResolveActorEventNameFaultIsolation(t *testing.T) {
	user := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/carol", UserName: "carol"}
	api := &fakeTrailAPI{
		errs: map[string]error{
			"RunInstances": errors.New("throttled"),
		},
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"StartInstances": {page(trailRecord(time.Now(), trailPayload(t, user, []string{"i-abc123"}, nil)))},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateRunning, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "carol", actor.Label)
}

func TestResolveActorSkipsMalformedRecords(t *testing.T) {
	user := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/dave", UserName: "dave"}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"StopInstances": {page(
				trailRecord(time.Now(), "{not json"),
				trailRecord(time.Now(), trailPayload(t, user, []string{"i-abc123"}, nil)),
			)},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateStopping, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "dave", actor.Label)
}

func TestResolveActorRequiresIdentityARN(t *testing.T) {
	anonymous := identity{Type: "IAMUser"}
	named := identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/erin", UserName: "erin"}
	api := &fakeTrailAPI{
		pages: map[string][]cloudtrail.LookupEventsOutput{
			"StopInstances": {page(
				trailRecord(time.Now(), trailPayload(t, anonymous, []string{"i-abc123"}, nil)),
				trailRecord(time.Now(), trailPayload(t, named, []string{"i-abc123"}, nil)),
			)},
		},
	}
	client := newTestClient(api)

	actor, err := client.ResolveActor(context.Background(), "i-abc123", models.StateStopping, 7)

	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, "erin", actor.Label)
}

func TestActorLabelPolicy(t *testing.T) {
	tests := []struct {
		name string
		id   identity
		want string
	}{
		{
			name: "direct user name wins",
			id:   identity{Type: "IAMUser", ARN: "arn:aws:iam::123456789012:user/alice", UserName: "alice"},
			want: "alice",
		},
		{
			name: "session issuer",
			id: identity{
				Type:      "AssumedRole",
				ARN:       "arn:aws:sts::123456789012:assumed-role/DeployRole/ci",
				IssuerARN: "arn:aws:iam::123456789012:role/DeployRole",
			},
			want: "DeployRole (AssumedRole)",
		},
		{
			name: "assumed role without issuer",
			id:   identity{Type: "AssumedRole", ARN: "arn:aws:sts::123456789012:assumed-role/MyRole/session-name"},
			want: "MyRole/session-name (AssumedRole)",
		},
		{
			name: "federated user",
			id:   identity{Type: "FederatedUser", ARN: "arn:aws:sts::123456789012:federated-user/fiona"},
			want: "fiona (Federated)",
		},
		{
			name: "aws account",
			id:   identity{Type: "AWSAccount", ARN: "arn:aws:iam::123456789012:root", AccountID: "123456789012"},
			want: "Account:123456789012",
		},
		{
			name: "raw type fallback",
			id:   identity{Type: "AWSService", ARN: "arn:aws:iam::123456789012:service/autoscaling"},
			want: "AWSService",
		},
		{
			name: "unknown identity",
			id:   identity{ARN: "arn:aws:iam::123456789012:mystery"},
			want: "Unknown identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var evt trailEvent
			require.NoError(t, json.Unmarshal([]byte(trailPayload(t, tt.id, nil, nil)), &evt))
			assert.Equal(t, tt.want, actorLabel(evt))
		})
	}
}
