// Package mq содержит инфраструктуру обмена сообщениями через RabbitMQ.
//
// Включает:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — объявление exchanges, queues и bindings
//   - publisher.go  — публикация persistent JSON сообщений
//   - consumer.go   — потребление с ручным ack и prefetch
//
// Топология:
//
//	maestro.workflows (direct) --events--> workflow.events
//	maestro.dlq       (direct) --events--> workflow.events.DLQ
//
// Сообщения, обработка которых завершилась ошибкой после всех
// повторов, отклоняются без requeue и через x-dead-letter-exchange
// попадают в workflow.events.DLQ.
package mq
