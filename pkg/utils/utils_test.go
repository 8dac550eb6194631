package utils

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
)

func TestFormatActionTime(t *testing.T) {
	// 01:00 UTC is 09:00 in UTC+8.
	utc := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "20240101 09:00:00", FormatActionTime(utc))

	// Input in another zone still renders as UTC+8.
	est := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, "20240101 09:00:00", FormatActionTime(time.Date(2023, 12, 31, 20, 0, 0, 0, est)))
}

func TestCompactJSON(t *testing.T) {
	assert.Equal(t, "{}", CompactJSON(nil))
	// A typed-nil map slips past an interface nil check and would marshal
	// to "null" without the placeholder handling.
	assert.Equal(t, "{}", CompactJSON(map[string]string(nil)))
	assert.Equal(t, "{}", CompactJSON(map[string]string{}))
	// Keys come out sorted, so output is stable.
	assert.Equal(t, `{"Env":"prod","Name":"web-1"}`, CompactJSON(map[string]string{"Name": "web-1", "Env": "prod"}))
}

func TestGetTagsMap(t *testing.T) {
	tags := []types.Tag{
		{Key: aws.String("Name"), Value: aws.String("web-1")},
		{Key: aws.String("Env"), Value: aws.String("prod")},
		{Key: aws.String("broken"), Value: nil},
	}
	assert.Equal(t, map[string]string{"Name": "web-1", "Env": "prod"}, GetTagsMap(tags))
	assert.Equal(t, "web-1", GetName(tags))
	assert.Equal(t, "", GetTagValue(tags, "missing"))
}
