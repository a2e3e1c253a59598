package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	"github.com/segmentio/kafka-go"
)

// TaskEvent - пользователь выполнил задание (регистрация, первая генерация и т.п.)
type TaskEvent struct {
	InviteeID string `json:"inviteeId"`
	TaskType  string `json:"taskType"`
}

// Битое сообщение: пропускается без повтора чтения
var ErrMalformedTask = errors.New("malformed task event")

type KafkaTasks struct {
	reader *kafka.Reader
}

func NewReader(conf cfg.Kafka) (*KafkaTasks, error) {
	if conf.Host == "" {
		return nil, fmt.Errorf("env KAFKA_TASKS_URL is not set")
	}
	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{conf.Host + ":" + conf.Port},
		Topic:   conf.Topic,
		GroupID: conf.GroupID,
	}
	return &KafkaTasks{kafka.NewReader(kafkaconfig)}, nil
}

// Следующее событие; offset фиксируется при чтении
func (k *KafkaTasks) GetNewTask(ctx context.Context) (TaskEvent, error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return TaskEvent{}, err
	}
	return ParseTask(msg.Value)
}

func ParseTask(body []byte) (TaskEvent, error) {
	var ev TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	if ev.InviteeID == "" || ev.TaskType == "" {
		return TaskEvent{}, fmt.Errorf("%w: no inviteeId or taskType: %s", ErrMalformedTask, body)
	}
	return ev, nil
}

func (k *KafkaTasks) Close() error {
	return k.reader.Close()
}
