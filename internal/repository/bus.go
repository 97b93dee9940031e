package repository

// MessageBus decouples the repository from the concrete event transport.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
