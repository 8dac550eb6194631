package slack

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/utils"
)

// Mode selects which message layout the builder produces.
type Mode string

const (
	// ModeDetailed renders the full block layout with instance and actor
	// field grids and a console link button.
	ModeDetailed Mode = "detailed"
	// ModeCompact renders a single context line with decorative images.
	ModeCompact Mode = "compact"
)

const consoleURLTemplate = "https://%s.console.aws.amazon.com/ec2/home?region=%s#InstanceDetails:instanceId=%s"

// startReminders are drawn at random for freshly started instances.
var startReminders = []string{
	"Billing is charging from this moment.",
	"Hourly charges are now in effect.",
	"Running and generating costs.",
	"Monitor usage to control expenses.",
	"Ensure you stop the instance when not needed.",
}

// stopReminders warn that a stopped instance is not a free instance.
var stopReminders = []string{
	"EBS volume storage charges continuely.",
	"Persistent EBS and allocated Elastic IP COSTS still apply.",
	"Stopping an EC2 instance does not STOP EBS or Elastic IP COSTS.",
	"EC2 instance is stopped; you will continue to incur EBS volume FEES.",
	"Remember to release Elastic IPs and delete unused volumes to avoid CHARGES.",
}

var titlesByState = map[string]string{
	"running":    "🚀 EC2 Instance Started 🚀",
	"terminated": "💀 EC2 Instance Terminated 💀",
	"stopping":   "😴 EC2 Instance Stopping 😴",
}

var verbsByState = map[string]string{
	"running":    "Started",
	"terminated": "Terminated",
	"stopping":   "Stopping",
	"stopped":    "Stopped",
}

// Decorative images for the compact layout.
const (
	ec2IconURL        = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcRULf2JOHbvkPux8pEzQrkH70TVSpfgRMzgQA&s"
	rocketGifURL      = "https://em-content.zobj.net/source/noto-emoji-animations/344/rocket_1f680.gif"
	sleepingGifURL    = "https://em-content.zobj.net/source/animated-noto-color-emoji/356/sleeping-face_1f634.gif"
	moneyMouthGifURL  = "https://em-content.zobj.net/source/animated-noto-color-emoji/356/money-mouth-face_1f911.gif"
	largeVolumeSuffix = "\n⚠️ Large EBS ⚠️"
)

// largeVolumeThresholdGiB is the strict lower bound above which the EBS
// field carries a warning.
const largeVolumeThresholdGiB = 1024

// MessageBuilder turns instance metadata and an optional resolved actor
// into a Slack webhook message. Building is total: missing fields render as
// placeholders, never as an error.
type MessageBuilder struct {
	mode Mode
	rng  *rand.Rand
}

// NewMessageBuilder creates a builder for the given mode. A nil rng gets a
// time-seeded source; tests pass a pinned seed to make the reminder draw
// deterministic.
func NewMessageBuilder(mode Mode, rng *rand.Rand) *MessageBuilder {
	if mode != ModeCompact {
		mode = ModeDetailed
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MessageBuilder{mode: mode, rng: rng}
}

// Build renders the notification for one state change. The raw state string
// is accepted as-is so that unrecognized states still produce a generic
// message instead of failing.
func (b *MessageBuilder) Build(instance models.InstanceInfo, actor *models.ActorInfo, state, region, instanceID string) *slack.WebhookMessage {
	if b.mode == ModeCompact {
		return b.buildCompact(instance, actor, state)
	}
	return b.buildDetailed(instance, actor, state, region, instanceID)
}

func (b *MessageBuilder) buildDetailed(instance models.InstanceInfo, actor *models.ActorInfo, state, region, instanceID string) *slack.WebhookMessage {
	title, ok := titlesByState[state]
	if !ok {
		title = fmt.Sprintf("ℹ️ EC2 Instance %s ℹ️", capitalize(state))
	}

	button := slack.NewButtonBlockElement("button-action", "click_me_123",
		slack.NewTextBlockObject(slack.PlainTextType, "Go To AWS EC2", true, false))
	button.URL = fmt.Sprintf(consoleURLTemplate, region, region, instanceID)

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, true, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.PlainTextType, b.subtitle(state, actor), true, false), nil, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(nil, instanceFields(instance), nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(nil, actorFields(actor, state), nil),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "For more detail information 👉", false, false),
			nil,
			slack.NewAccessory(button),
		),
	}

	return &slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func (b *MessageBuilder) buildCompact(instance models.InstanceInfo, actor *models.ActorInfo, state string) *slack.WebhookMessage {
	verb, ok := verbsByState[state]
	if !ok {
		verb = capitalize(state)
	}

	label := "Unknown"
	if actor != nil {
		label = actor.Label
	}

	elements := []slack.MixedElement{
		slack.NewImageBlockElement(ec2IconURL, "EC2 instance"),
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*%s* is *%s* by *%s*", instance.Name, verb, label), false, false),
	}

	switch verb {
	case "Started":
		elements = append(elements, slack.NewImageBlockElement(rocketGifURL, "space ship"))
	case "Stopping":
		elements = append(elements, slack.NewImageBlockElement(sleepingGifURL, "sleepy"))
	case "Terminated":
		elements = append(elements, slack.NewImageBlockElement(moneyMouthGifURL, "rich"))
	}

	return &slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewContextBlock("", elements...),
		}},
	}
}

// subtitle picks the second line under the title. Start and stop states draw
// a cost reminder from a fixed pool; terminations thank whoever cleaned up.
func (b *MessageBuilder) subtitle(state string, actor *models.ActorInfo) string {
	switch state {
	case "running":
		return startReminders[b.rng.Intn(len(startReminders))]
	case "stopping":
		return stopReminders[b.rng.Intn(len(stopReminders))]
	case "terminated":
		label := "Unknown"
		if actor != nil {
			label = actor.Label
		}
		return fmt.Sprintf("Good job %s 🥰🥰🥰", label)
	default:
		return fmt.Sprintf("Instance state changed to %s.", state)
	}
}

func instanceFields(instance models.InstanceInfo) []*slack.TextBlockObject {
	name := instance.Name
	if name == "" {
		name = "N/A"
	}
	instanceType := instance.InstanceType
	if instanceType == "" {
		instanceType = "N/A"
	}

	volumeType := instance.RootVolumeType
	if volumeType == "" {
		volumeType = "unknown"
	}
	ebs := fmt.Sprintf("N/A (%s)", volumeType)
	if instance.RootVolumeSize > 0 {
		ebs = fmt.Sprintf("%d GiB (%s)", instance.RootVolumeSize, volumeType)
		if instance.RootVolumeSize > largeVolumeThresholdGiB {
			ebs += largeVolumeSuffix
		}
	}

	return []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Name:*\n%s", name), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Type:*\n%s", instanceType), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*EBS:*\n%s", ebs), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Tags:*\n```%s```", utils.CompactJSON(instance.Tags)), false, false),
	}
}

func actorFields(actor *models.ActorInfo, state string) []*slack.TextBlockObject {
	label, arn, actionTime := "Unknown", "Unknown", "Unknown"
	if actor != nil {
		label = actor.Label
		arn = actor.ARN
		actionTime = utils.FormatActionTime(actor.EventTime)
	}

	return []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Action By:*\n%s", label), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*IAM ARN:*\n%s", arn), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Action Type:*\n%s", state), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Action Time:*\n%s", actionTime), false, false),
	}
}

// capitalize upper-cases the first rune and lower-cases the rest, matching
// how state names appear in titles ("shutting-down" -> "Shutting-down").
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
