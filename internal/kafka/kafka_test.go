package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	w := &recordingWriter{}
	var logs bytes.Buffer
	p := &Producer{Writer: w, Logger: logger.New(&logs)}

	err := p.Publish(context.Background(), "seats", "show-1", map[string]string{"status": "HELD"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "seats", w.msgs[0].Topic)
	assert.Equal(t, []byte("show-1"), w.msgs[0].Key)
	assert.JSONEq(t, `{"status":"HELD"}`, string(w.msgs[0].Value))
	assert.Contains(t, logs.String(), "KAFKA")
}

func TestProducerPublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &Producer{Writer: w, Logger: logger.Discard()}

	err := p.Publish(context.Background(), "seats", "k", struct{}{})
	assert.EqualError(t, err, "broker down")

	err = p.Publish(context.Background(), "seats", "k", make(chan int))
	assert.Error(t, err)
}

type scriptedReader struct {
	msgs []kafka.Message
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumerDispatchesValidResults(t *testing.T) {
	good, _ := json.Marshal(PaymentResult{SessionID: "s1", Outcome: models.OutcomeSuccess})
	failing, _ := json.Marshal(PaymentResult{SessionID: "s2", Outcome: models.OutcomeFailure})
	badOutcome, _ := json.Marshal(PaymentResult{SessionID: "s3", Outcome: "MAYBE"})

	reader := &scriptedReader{msgs: []kafka.Message{
		{Value: good},
		{Value: []byte("not json")},
		{Value: badOutcome},
		{Value: failing},
	}}
	c := NewConsumerWithReader(reader, logger.Discard())

	var got []PaymentResult
	err := c.Start(context.Background(), func(_ context.Context, r PaymentResult) error {
		got = append(got, r)
		if r.SessionID == "s2" {
			return errors.New("settle failed")
		}
		return nil
	})

	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, models.OutcomeFailure, got[1].Outcome)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumerWithReader(blockingReader{}, logger.Discard())

	assert.NoError(t, c.Start(ctx, func(context.Context, PaymentResult) error { return nil }))
}

type blockingReader struct{}

func (blockingReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (blockingReader) Close() error { return nil }

func TestEnsureTopicsExistNeedsBrokers(t *testing.T) {
	assert.Error(t, EnsureTopicsExist(nil, []string{"a"}, logger.Discard()))
}
