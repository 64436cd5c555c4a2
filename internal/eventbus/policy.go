package eventbus

// DeliveryStrategy selects what happens when a subscriber's channel is
// full at publish time.
type DeliveryStrategy string

const (
	// StrategyDropOldest evicts the oldest queued event to admit the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
	// StrategyOverflow spills into a capped ring that a background
	// goroutine drains back into the channel.
	StrategyOverflow DeliveryStrategy = "overflow"
)

// DeliveryPolicy is a topic's backpressure contract.
type DeliveryPolicy struct {
	Strategy      DeliveryStrategy
	SpillCapacity int // ring size under StrategyOverflow; 0 means defaultSpillCapacity
}

const defaultSpillCapacity = 512

// topicPolicies assigns each topic its backpressure behavior.
var topicPolicies = map[Topic]DeliveryPolicy{
	// A dropped transition desynchronises consumers' view of the
	// connection state machine, so status and settings changes spill
	// instead of dropping.
	TopicEngineStatus:   {Strategy: StrategyOverflow},
	TopicSettingChanged: {Strategy: StrategyOverflow},

	// Snapshots are state-replace and remote frames are high-volume; the
	// newest value is the one that matters.
	TopicEngineSnapshot: {Strategy: StrategyDropOldest},
	TopicEngineChannel:  {Strategy: StrategyDropOldest},
	TopicEngineRemote:   {Strategy: StrategyDropOldest},

	// Periodic and best-effort; the next attempt supersedes.
	TopicCloudSync:      {Strategy: StrategyDropNewest},
	TopicCloudHeartbeat: {Strategy: StrategyDropNewest},
}

// fallbackPolicy covers topics with no table entry.
var fallbackPolicy = DeliveryPolicy{Strategy: StrategyDropOldest}

// policyFor returns the delivery policy for topic.
func policyFor(topic Topic) DeliveryPolicy {
	if p, ok := topicPolicies[topic]; ok {
		return p
	}
	return fallbackPolicy
}
