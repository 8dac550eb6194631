package models

// InstanceInfo represents EC2 instance information used to build a
// notification. Values are resolved fresh per event and never persisted.
type InstanceInfo struct {
	InstanceID     string
	Name           string // Name tag, "N/A" when the tag is absent
	InstanceType   string
	Region         string
	RootVolumeSize int32  // GiB; 0 when the volume is no longer resolvable
	RootVolumeType string // "unknown" when undeterminable
	Tags           map[string]string
}
