package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log, err := logger.New("test")
	require.NoError(t, err)
	return NewBus(log, rdb)
}

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "merchant-1", func(ev Event) { received <- ev }))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, Event{
		MerchantID: "merchant-1", Topic: TopicStage, WorkflowID: "wf-1", Stage: "ai_parsing", Percent: 10,
	}))

	select {
	case ev := <-received:
		require.Equal(t, "ai_parsing", ev.Stage)
		require.Equal(t, 10, ev.Percent)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestBus_PublishAppendsToClientLog(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, Event{MerchantID: "m1", Topic: TopicError, WorkflowID: "wf-2", Error: "boom"}))

	entries := bus.ClientLog().Recent("wf-2")
	require.Len(t, entries, 1)
	require.Equal(t, SeverityError, entries[0].Severity)
}

func TestClientLog_EvictsOldestBeyondCapacity(t *testing.T) {
	log := NewClientLog()
	for i := 0; i < clientLogCapacity+10; i++ {
		log.Append("wf-3", Event{Topic: TopicProgress, Percent: i})
	}
	entries := log.Recent("wf-3")
	require.Len(t, entries, clientLogCapacity)
	require.Equal(t, 10, entries[0].Event.Percent)
}

func TestClassify_SeverityRules(t *testing.T) {
	require.Equal(t, SeverityError, classify(Event{Topic: TopicError}))
	require.Equal(t, SeverityWarning, classify(Event{Message: "retrying after stalled job"}))
	require.Equal(t, SeverityInfo, classify(Event{Message: "stage complete"}))
}
