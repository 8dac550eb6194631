package utils

import "time"

// actionTimeZone is the display zone for audit timestamps. The team that
// consumes these notifications works in UTC+8, so action times are rendered
// in that offset regardless of the instance's region.
var actionTimeZone = time.FixedZone("UTC+8", 8*60*60)

// FormatActionTime formats a CloudTrail event time for display (UTC+8).
func FormatActionTime(t time.Time) string {
	return t.In(actionTimeZone).Format("20060102 15:04:05")
}
