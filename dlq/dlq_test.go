package dlq

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nr-labs/nrdot-core/record"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "nrdot-dlq-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := Config{Directory: dir, ReplayConcurrency: 2}
	require.NoError(t, cfg.Validate())
	return cfg
}

func sampleRecord(id string) record.Record {
	return record.Record{
		Kind:         record.KindMetric,
		IngressNanos: 1000,
		Attributes:   record.AttributeSet{"id": record.StringAttr(id), "count": record.IntAttr(7)},
		Class:        record.ClassHigh,
		Payload:      []byte("payload-" + id),
	}
}

func TestEncodeDecodeRecord_RoundTrips(t *testing.T) {
	r := sampleRecord("a")
	frame, err := EncodeRecord(r)
	require.NoError(t, err)

	got, err := DecodeRecord(frame)
	require.NoError(t, err)

	assert.Equal(t, r.Kind, got.Kind)
	assert.Equal(t, r.IngressNanos, got.IngressNanos)
	assert.Equal(t, r.Class, got.Class)
	assert.Equal(t, r.Payload, got.Payload)
	assert.Equal(t, r.Attributes["id"].AsString(), got.Attributes["id"].AsString())
	assert.Equal(t, r.Attributes["count"].AsInt(), got.Attributes["count"].AsInt())
}

func TestStore_WriteThenReplayRecoversAllRecords(t *testing.T) {
	cfg := testConfig(t)
	store, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Write(ctx, sampleRecord(string(rune('a'+i)))))
	}

	consumer := &collectingConsumer{}
	require.NoError(t, store.Replay(ctx, consumer))

	assert.Len(t, consumer.records(), 5)
}

func TestStore_ReplayRejectsConcurrentReplay(t *testing.T) {
	cfg := testConfig(t)
	store, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, sampleRecord("x")))

	store.replayMu.Lock()
	store.replayActive = true
	store.replayMu.Unlock()

	err = store.Replay(ctx, &collectingConsumer{})
	assert.Error(t, err)
}

type collectingConsumer struct {
	mu  sync.Mutex
	out []record.Record
}

func (c *collectingConsumer) ConsumeReplayed(_ context.Context, r record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, r)
	return nil
}

func (c *collectingConsumer) records() []record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]record.Record(nil), c.out...)
}

func TestInterleaveController_AlternatesInBlocksOfRatio(t *testing.T) {
	ic := newInterleaveController(2)

	assert.True(t, ic.allowReplay())
	assert.True(t, ic.allowReplay())
	assert.False(t, ic.allowReplay()) // turn flipped to live after 2
	assert.True(t, ic.allowLive())
	assert.True(t, ic.allowLive())
	assert.False(t, ic.allowLive()) // turn flipped back to replay
	assert.True(t, ic.allowReplay())
}

func TestInterleaveController_ConcurrentCallersNeverExceedRatioPerTurn(t *testing.T) {
	ic := newInterleaveController(3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ic.allowReplay() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, admitted)
}
