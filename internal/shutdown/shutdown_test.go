package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	h := NewHandler(zaptest.NewLogger(t), time.Second)
	var order []string
	for _, name := range []string{"store", "bus", "nats"} {
		h.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	assert.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, []string{"nats", "bus", "store"}, order)

	// второй вызов ничего не закрывает
	assert.NoError(t, h.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownCollectsErrorsAndTimeouts(t *testing.T) {
	h := NewHandler(zaptest.NewLogger(t), 50*time.Millisecond)
	boom := errors.New("boom")
	release := make(chan struct{})
	defer close(release)

	h.AddFunc("slow", func() error {
		<-release
		return nil
	})
	h.AddFunc("broken", func() error { return boom })

	err := h.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "slow: shutdown timeout")
}
