package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundryonline/internal/model"
)

func TestFeed_LatestSnapshotWins(t *testing.T) {
	f := NewFeed()
	stream := f.Subscribe(Snapshot{Machines: []model.Machine{}, TakenAt: time.Now()})
	defer stream.Close()

	f.Publish(Snapshot{Machines: []model.Machine{{ID: "a"}}})
	f.Publish(Snapshot{Machines: []model.Machine{{ID: "a"}, {ID: "b"}}})

	snap, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len(), "unread snapshots are replaced by newer ones")
	assert.Equal(t, uint64(2), snap.Seq)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFeed_DropsOlderSnapshot(t *testing.T) {
	f := NewFeed()
	base := time.Now()
	stream := f.Subscribe(Snapshot{TakenAt: base})
	defer stream.Close()
	_, err := stream.Next(context.Background())
	require.NoError(t, err)

	newer := Snapshot{Machines: []model.Machine{{ID: "a"}, {ID: "b"}}, TakenAt: base.Add(2 * time.Millisecond)}
	older := Snapshot{Machines: []model.Machine{{ID: "a"}}, TakenAt: base.Add(time.Millisecond)}
	assert.Equal(t, uint64(1), f.Publish(newer))
	assert.Equal(t, uint64(1), f.Publish(older), "a late snapshot is not published")

	snap, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, uint64(1), snap.Seq)
}

func TestFeed_FailEndsStreams(t *testing.T) {
	f := NewFeed()
	stream := f.Subscribe(Snapshot{TakenAt: time.Now()})

	_, err := stream.Next(context.Background())
	require.NoError(t, err)

	boom := errors.New("connection lost")
	f.Fail(boom)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.Subscribers())

	// A new subscription works after a failure.
	again := f.Subscribe(Snapshot{TakenAt: time.Now()})
	defer again.Close()
	_, err = again.Next(context.Background())
	assert.NoError(t, err)
}

func TestFeed_CloseAndDetach(t *testing.T) {
	f := NewFeed()
	stream := f.Subscribe(Snapshot{TakenAt: time.Now()})
	assert.Equal(t, 1, f.Subscribers())

	stream.Close()
	stream.Close()
	assert.Equal(t, 0, f.Subscribers())

	// Pending snapshot is still readable, then the stream reports closure.
	_, err := stream.Next(context.Background())
	assert.NoError(t, err)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)

	f.Close()
	closed := f.Subscribe(Snapshot{TakenAt: time.Now()})
	_, err = closed.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}
