package qbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestBus builds a bus that is closed when the test ends.
func newTestBus(t *testing.T, init func(b *BusBuilder)) *Bus {
	t.Helper()
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func syncRunning(b *BusBuilder) {
	b.WithSyncDispatch(true).WithAutoStart(true)
}
