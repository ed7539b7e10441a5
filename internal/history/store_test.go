// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mysqlctl/internal/lifecycle"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, lifecycle.Event{
		Timestamp: base,
		Event:     lifecycle.EventStart,
		DataDir:   "/data/a",
		Success:   true,
		Flags:     map[string]string{"port": "3307", "skip-networking": ""},
	}))
	require.NoError(t, s.Record(ctx, lifecycle.Event{
		Timestamp:  base.Add(time.Second),
		Event:      lifecycle.EventStartSuccess,
		InstanceID: "abc",
		DataDir:    "/data/a",
		PID:        1234,
		Success:    true,
		Message:    "Instance started successfully",
	}))
	require.NoError(t, s.Record(ctx, lifecycle.Event{
		Timestamp: base.Add(2 * time.Second),
		Event:     lifecycle.EventStartFailure,
		DataDir:   "/data/b",
		ExitCode:  1,
		Error:     "instance in /data/b failed to start",
	}))

	events, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, lifecycle.EventStartFailure, events[0].Event)
	assert.Equal(t, 1, events[0].ExitCode)
	assert.Equal(t, lifecycle.EventStart, events[2].Event)
	assert.Equal(t, map[string]string{"port": "3307", "skip-networking": ""}, events[2].Flags)
	assert.True(t, events[2].Timestamp.Equal(base))

	events, err = s.List(ctx, Filter{DataDir: "/data/a"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "abc", events[0].InstanceID)
	assert.Equal(t, 1234, events[0].PID)
	assert.Nil(t, events[0].Flags)

	events, err = s.List(ctx, Filter{Event: lifecycle.EventStart})
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.List(ctx, Filter{Since: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_RecordDefaultsTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	require.NoError(t, s.Record(ctx, lifecycle.Event{Event: lifecycle.EventStop, DataDir: "/data"}))

	events, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.After(before))
	assert.Empty(t, events[0].InstanceID)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, lifecycle.Event{Timestamp: now.Add(-48 * time.Hour), Event: lifecycle.EventStart, DataDir: "/d"}))
	require.NoError(t, s.Record(ctx, lifecycle.Event{Timestamp: now, Event: lifecycle.EventStart, DataDir: "/d"}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, lifecycle.Event{Event: lifecycle.EventInitialize, DataDir: "/d"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	events, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_AsRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var rec lifecycle.Recorder = lifecycle.MultiRecorder{nil, s}
	require.NoError(t, rec.Record(ctx, lifecycle.Event{Event: lifecycle.EventTerminated, DataDir: "/d", ExitCode: 137}))

	events, err := s.List(ctx, Filter{DataDir: "/d"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 137, events[0].ExitCode)
}
