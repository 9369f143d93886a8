package rabbitmq

// Exchange имя exchange для событий подписок.
const Exchange = "subscriptions"

// Маршрутные ключи событий подписок.
const (
	RoutingKeyActivated = "activated"
	RoutingKeyExpired   = "expired"
)

// QueueConfig описывает очередь и её маршрутный ключ.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetSubscriptionQueues возвращает очереди событий подписок.
func GetSubscriptionQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "subscription.activated", RoutingKey: RoutingKeyActivated},
		{QueueName: "subscription.expired", RoutingKey: RoutingKeyExpired},
	}
}
