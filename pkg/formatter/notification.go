package formatter

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/utils"
)

// PrintNotificationSummary prints what was (or would be) sent for one state
// change, in the same key/value layout the Slack message carries.
func PrintNotificationSummary(w io.Writer, instance models.InstanceInfo, actor *models.ActorInfo, state string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "FIELD\tVALUE")
	fmt.Fprintf(tw, "Instance ID\t%s\n", instance.InstanceID)
	fmt.Fprintf(tw, "Name\t%s\n", instance.Name)
	fmt.Fprintf(tw, "Type\t%s\n", instance.InstanceType)
	fmt.Fprintf(tw, "Region\t%s\n", instance.Region)
	fmt.Fprintf(tw, "State\t%s\n", state)

	if instance.RootVolumeSize > 0 {
		fmt.Fprintf(tw, "Root volume\t%d GiB (%s)\n", instance.RootVolumeSize, instance.RootVolumeType)
	} else {
		fmt.Fprintf(tw, "Root volume\tN/A (%s)\n", instance.RootVolumeType)
	}

	if actor != nil {
		fmt.Fprintf(tw, "Action by\t%s\n", actor.Label)
		fmt.Fprintf(tw, "IAM ARN\t%s\n", actor.ARN)
		fmt.Fprintf(tw, "Action time\t%s (%s)\n", utils.FormatActionTime(actor.EventTime), humanize.Time(actor.EventTime))
	} else {
		fmt.Fprintln(tw, "Action by\tUnknown")
	}

	tw.Flush()
	printTags(w, instance.Tags)
}

func printTags(w io.Writer, tags map[string]string) {
	if len(tags) == 0 {
		return
	}

	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "\nTags:")
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, key := range keys {
		fmt.Fprintf(tw, "  %s\t%s\n", key, tags[key])
	}
	tw.Flush()
}
