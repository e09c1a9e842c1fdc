package port

import "context"

type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}
