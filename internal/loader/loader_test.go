package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadOnce_PublishesRegistryAndRebinds(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":4000},
		{"tokenUri":"https://p/t","clientId":"cid","clientSecret":"sec","redirectBackHosts":["https://x.test"]}]`)

	var rebound []int
	l := New(path, zerolog.Nop(), func(port int) { rebound = append(rebound, port) })
	l.LoadOnce()

	snap := l.Snapshot()
	require.Equal(t, 4000, snap.Port)
	_, ok := snap.Registry.Lookup("cid", "https://p/t")
	require.True(t, ok)
	require.Equal(t, []int{4000}, rebound)
}

func TestLoadOnce_UnchangedFileNoOp(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":4000}]`)

	var rebindCount int
	l := New(path, zerolog.Nop(), func(int) { rebindCount++ })
	l.LoadOnce()
	l.LoadOnce()
	require.Equal(t, 1, rebindCount)
}

func TestLoadOnce_InvalidFileRetainsRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"tokenUri":"https://p/t","clientId":"cid","clientSecret":"sec","redirectBackHosts":["https://x.test"]}]`)

	l := New(path, zerolog.Nop(), nil)
	l.LoadOnce()
	before := l.Snapshot()

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))
	l.LoadOnce()
	after := l.Snapshot()

	require.Equal(t, before.Port, after.Port)
	_, ok := after.Registry.Lookup("cid", "https://p/t")
	require.True(t, ok)
}

func TestLoadOnce_MissingFileRetainsRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"tokenUri":"https://p/t","clientId":"cid","clientSecret":"sec","redirectBackHosts":["https://x.test"]}]`)

	l := New(path, zerolog.Nop(), nil)
	l.LoadOnce()

	require.NoError(t, os.Remove(path))
	l.LoadOnce()

	_, ok := l.Snapshot().Registry.Lookup("cid", "https://p/t")
	require.True(t, ok)
}

func TestLoadOnce_EmptyRemoteListPermitted(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":3000}]`)

	l := New(path, zerolog.Nop(), nil)
	l.LoadOnce()
	require.Equal(t, 0, l.Snapshot().Registry.Len())
}

func TestRun_PicksUpChangeWithinPollPeriod(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":3000}]`)

	l := New(path, zerolog.Nop(), nil)
	l.LoadOnce()
	require.Equal(t, 2*time.Second, l.SamplePeriod())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`[{"port":4000}]`), 0o644))
	require.Eventually(t, func() bool {
		return l.Snapshot().Port == 4000
	}, time.Second, 10*time.Millisecond)
}

func TestSamplePeriod_OverrideWinsOverDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":3000,"configSamplePeriod":10}]`)

	l := New(path, zerolog.Nop(), nil)
	l.WithPollPeriodOverride(1)
	l.LoadOnce()

	require.Equal(t, time.Second, l.SamplePeriod())
}

func TestRun_ZeroPeriodNeverPolls(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, `[{"port":3000}]`)

	l := New(path, zerolog.Nop(), nil)
	l.LoadOnce()

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx, 0)

	require.NoError(t, os.WriteFile(path, []byte(`[{"port":4000}]`), 0o644))
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.Equal(t, 3000, l.Snapshot().Port)
}
