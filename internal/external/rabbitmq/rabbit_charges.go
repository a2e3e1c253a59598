package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitConsumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	Msg   <-chan amqp.Delivery
	chout *amqp.Channel
}

const queue = "charges"
const queueout = "charge-confirms"

func URL(conf cfg.Rabbit) (string, error) {
	if conf.Host == "" {
		return "", fmt.Errorf("env RABBIT_URL is not set")
	}
	if conf.User == "" {
		return "", fmt.Errorf("env RABBIT_USER is not set")
	}
	if conf.Password == "" {
		return "", fmt.Errorf("env RABBIT_PASSWORD is not set")
	}
	return "amqp://" + conf.User + ":" + conf.Password + "@" + conf.Host + ":" + conf.Port + "/" + conf.VHost, nil
}

// NewRabbitConsumer подключается к очереди списаний.
// prefetch ограничивает число неподтвержденных сообщений на канал
func NewRabbitConsumer(conf cfg.Rabbit, prefetch int) (rabbit *RabbitConsumer, err error) {
	url, err := URL(conf)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	// канал для входящих
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err = ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// канал для исходящих
	chout, err := conn.Channel()
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	_, err = chout.QueueDeclare(
		queueout, // name
		true,     // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	// подтверждение вручную после обработки
	msg, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitConsumer{conn, ch, msg, chout}, nil
}

func (r *RabbitConsumer) Close() {
	r.chout.Close()
	r.ch.Close()
	r.conn.Close()
}

type ChargeConfirm struct {
	ChargeID string `json:"chargeId"`
	Success  bool   `json:"success"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Balance  int64  `json:"balance"`
}

// подтверждение списания
func (r *RabbitConsumer) Processed(ctx context.Context, confirm ChargeConfirm) error {
	msg, err := json.Marshal(confirm)
	if err != nil {
		return err
	}

	return r.chout.PublishWithContext(ctx,
		"",       // exchange
		queueout, // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         msg,
		})
}
