package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	applogger "AutoTrade/pkg/logger"
)

type flakyHandler struct {
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "commands" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panics {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(applogger.Nop(), WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerRetry(retries, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	c.ctx = context.Background()
	c.sleep = func(context.Context, time.Duration) bool { return true }
	return c
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2}

	err := c.handle(h, kafka.Message{Topic: "commands"})
	assert.NoError(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestHandleGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 2)
	h := &flakyHandler{failures: 10}

	err := c.handle(h, kafka.Message{Topic: "commands"})
	assert.Error(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestHandleRecoversPanics(t *testing.T) {
	c := newTestConsumer(t, 0)

	err := c.handle(&flakyHandler{panics: true}, kafka.Message{Topic: "commands"})
	assert.ErrorContains(t, err, "panic")
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
