package ledger

import (
	"testing"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParseTask(t *testing.T) {
	ev, err := ParseTask([]byte(`{"inviteeId":"u2","taskType":"first_creation"}`))
	require.NoError(t, err)
	require.Equal(t, TaskEvent{InviteeID: "u2", TaskType: "first_creation"}, ev)

	_, err = ParseTask([]byte(`{"inviteeId":"u2"}`))
	require.ErrorIs(t, err, ErrMalformedTask)

	_, err = ParseTask([]byte(`[]`))
	require.ErrorIs(t, err, ErrMalformedTask)
}

func TestNewReaderConfig(t *testing.T) {
	_, err := NewReader(cfg.Kafka{})
	require.ErrorContains(t, err, "KAFKA_TASKS_URL")
}
