package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/utils"
)

// EC2API is the subset of the EC2 service used to describe an instance and
// its root volume.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

// EC2Client struct for EC2 client
type EC2Client struct {
	client EC2API
	region string
}

// NewEC2Client creates a new EC2Client
func NewEC2Client(region string) (*EC2Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	return &EC2Client{
		client: ec2.NewFromConfig(cfg),
		region: region,
	}, nil
}

// NewEC2ClientFromAPI wraps an existing API implementation. Used by tests.
func NewEC2ClientFromAPI(api EC2API, region string) *EC2Client {
	return &EC2Client{client: api, region: region}
}

// GetInstanceInfo returns the metadata needed to build a notification for a
// single instance: type, tags and the root volume's size and type. Volume
// details degrade to 0/"unknown" for instances whose volumes are no longer
// resolvable (e.g. already terminated) instead of failing the lookup.
func (c *EC2Client) GetInstanceInfo(ctx context.Context, instanceID string) (models.InstanceInfo, error) {
	input := &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}

	result, err := c.client.DescribeInstances(ctx, input)
	if err != nil {
		return models.InstanceInfo{}, fmt.Errorf("error querying EC2 instance %s: %w", instanceID, err)
	}

	if len(result.Reservations) == 0 || len(result.Reservations[0].Instances) == 0 {
		return models.InstanceInfo{}, fmt.Errorf("instance %s not found in region %s", instanceID, c.region)
	}

	instance := result.Reservations[0].Instances[0]

	name := utils.GetName(instance.Tags)
	if name == "" {
		name = "N/A"
	}

	info := models.InstanceInfo{
		InstanceID:     instanceID,
		Name:           name,
		InstanceType:   string(instance.InstanceType),
		Region:         c.region,
		RootVolumeSize: 0,
		RootVolumeType: "unknown",
		Tags:           utils.GetTagsMap(instance.Tags),
	}

	// Locate the root volume via the block device mapping that matches the
	// root device name. Terminated instances have no mappings left.
	rootDevice := utils.SafeDeref(instance.RootDeviceName)
	var rootVolumeID string
	for _, mapping := range instance.BlockDeviceMappings {
		if utils.SafeDeref(mapping.DeviceName) == rootDevice && mapping.Ebs != nil {
			rootVolumeID = utils.SafeDeref(mapping.Ebs.VolumeId)
			break
		}
	}
	if rootVolumeID == "" {
		return info, nil
	}

	volumes, err := c.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{rootVolumeID},
	})
	if err != nil || len(volumes.Volumes) == 0 {
		// Volume lookup failures are not fatal for the notification.
		return info, nil
	}

	volume := volumes.Volumes[0]
	info.RootVolumeSize = utils.SafeDerefInt32(volume.Size)
	if volumeType := string(volume.VolumeType); volumeType != "" {
		info.RootVolumeType = volumeType
	}

	return info, nil
}
