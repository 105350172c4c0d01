package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func frame(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func lifecycleKafkaMessage(offset int64, eventType string, payload []byte) kafka.Message {
	return kafka.Message{
		Topic:     "user_lifecycle",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Value:     frame(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "schema_subject", Value: []byte("user_lifecycle-value")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"user_id":"user-1"}`)
	msg := lifecycleKafkaMessage(10, "user.created", payload)

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []int64{10}, handler.offsets)
	require.Equal(t, []int64{10}, reader.committed)
	require.Equal(t, "user.created", handler.last.EventType)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorRetriesFailedHandlerInPlace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := lifecycleKafkaMessage(10, "user.created", []byte(`{"user_id":"user-1"}`))
	second := lifecycleKafkaMessage(11, "user.created", []byte(`{"user_id":"user-2"}`))

	reader := &stubReader{
		messages: []kafka.Message{first, second},
		after:    contextCanceled,
	}
	// Fail twice on the first message, then recover.
	handler := &stubHandler{failures: 2}

	processor := NewProcessor(reader, handler,
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithRetryBackoff(time.Millisecond, 4*time.Millisecond),
	)

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Offset 10 is re-handled until it succeeds; only then is offset 11
	// fetched, so no commit ever skips past the failed event.
	require.Equal(t, []int64{10, 10, 10, 11}, handler.offsets)
	require.Equal(t, []int64{10, 11}, reader.committed)
}

func TestProcessorNeverCommitsPastUnhandledEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	first := lifecycleKafkaMessage(10, "user.created", []byte(`{"user_id":"user-1"}`))
	second := lifecycleKafkaMessage(11, "user.created", []byte(`{"user_id":"user-2"}`))

	reader := &stubReader{
		messages: []kafka.Message{first, second},
		after:    contextCanceled,
	}
	// Handler never recovers; the processor must stay parked on offset 10.
	handler := &stubHandler{failures: 1 << 30}

	processor := NewProcessor(reader, handler,
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithRetryBackoff(time.Millisecond, 4*time.Millisecond),
	)

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Empty(t, reader.committed)
	for _, offset := range handler.offsets {
		require.Equal(t, int64(10), offset)
	}
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Too short for Confluent framing; must be committed to avoid a poison pill.
	msg := kafka.Message{
		Topic:  "user_lifecycle",
		Offset: 7,
		Value:  []byte{0, 1},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Empty(t, handler.offsets)
	require.Equal(t, []int64{7}, reader.committed)
}

type stubReader struct {
	messages  []kafka.Message
	index     int
	committed []int64
	after     func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	failures int
	offsets  []int64
	last     Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.offsets = append(h.offsets, msg.Offset)
	h.last = msg
	if h.failures > 0 {
		h.failures--
		return errors.New("transient store failure")
	}
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
