package outbox

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateWindow = "availability_window"

const (
	TopicWindowCreated     = "availability.window.created.v1"
	TopicWindowUpdated     = "availability.window.updated.v1"
	TopicWindowDeactivated = "availability.window.deactivated.v1"
	TopicWindowReactivated = "availability.window.reactivated.v1"
)

// WindowTopics lists every topic this service publishes.
func WindowTopics() []string {
	return []string{TopicWindowCreated, TopicWindowUpdated, TopicWindowDeactivated, TopicWindowReactivated}
}
