package rabbitmq

// QueueConfig очередь и ключ маршрутизации, по которому она привязана.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GrantQueues возвращает очереди потребителей событий о выдаче доступа
// (письмо со ссылкой на PDF и аналитика).
func GrantQueues(routingKey string) []QueueConfig {
	return []QueueConfig{
		{QueueName: routingKey + ".email", RoutingKey: routingKey},
		{QueueName: routingKey + ".analytics", RoutingKey: routingKey},
	}
}
