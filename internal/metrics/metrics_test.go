package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_RecordsWithoutSDK(t *testing.T) {
	m := New(zap.NewNop())
	require.NotNil(t, m)

	// Without a configured meter provider every instrument is a no-op;
	// recording must still be safe.
	ctx := context.Background()
	m.RecordTurn(ctx, true)
	m.RecordTurn(ctx, false)
	m.RecordAtomsCreated(ctx, 3)
	m.RecordAtomsCreated(ctx, 0)
	m.RecordDecline(ctx)
	m.RecordFeedback(ctx, true)
	m.RecordComposeDuration(ctx, 0.012)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	ctx := context.Background()
	m.RecordTurn(ctx, true)
	m.RecordAtomsCreated(ctx, 1)
	m.RecordDecline(ctx)
	m.RecordFeedback(ctx, false)
	m.RecordComposeDuration(ctx, 0.5)
}
