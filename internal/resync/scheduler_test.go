package resync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagshrestha/autofin-BE/internal/ingest"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
	"github.com/sajagshrestha/autofin-BE/internal/testutil"
)

type fakeResyncer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeResyncer) ResyncMailbox(_ context.Context, userID string) (*ingest.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.BatchResult{}, nil
}

func (f *fakeResyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWatchProvider struct {
	registration *service.WatchRegistration
	err          error

	mu     sync.Mutex
	topics []string
}

func (f *fakeWatchProvider) HistoryDelta(_ context.Context, _ uint64) (*service.MailDelta, error) {
	return &service.MailDelta{}, nil
}

func (f *fakeWatchProvider) FetchMessage(_ context.Context, id string) (*service.MailMessage, error) {
	return &service.MailMessage{ID: id}, nil
}

func (f *fakeWatchProvider) MarkRead(_ context.Context, _ string) error { return nil }

func (f *fakeWatchProvider) RegisterWatch(_ context.Context, topic string, _ []string) (*service.WatchRegistration, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.registration, nil
}

func (f *fakeWatchProvider) StopWatch(_ context.Context) error { return nil }

func watchFactory(p *fakeWatchProvider) service.MailProviderFactory {
	return func(_ context.Context, _ *model.MailboxSync) (service.MailProvider, error) {
		return p, nil
	}
}

func TestScheduler_StartSupersedesPriorLoop(t *testing.T) {
	store := testutil.SetupTestDB(t)
	resyncer := &fakeResyncer{}
	s := NewScheduler(store, watchFactory(&fakeWatchProvider{}), resyncer, "topic", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, "user1")
	s.Start(ctx, "user1")
	s.Start(ctx, "user1")

	s.mu.Lock()
	active := len(s.cancels)
	s.mu.Unlock()
	assert.Equal(t, 1, active, "restarting must not accumulate loops")

	time.Sleep(60 * time.Millisecond)
	s.Shutdown()

	count := resyncer.callCount()
	assert.Greater(t, count, 0, "the surviving loop keeps ticking")
}

func TestScheduler_StopEndsLoop(t *testing.T) {
	store := testutil.SetupTestDB(t)
	resyncer := &fakeResyncer{}
	s := NewScheduler(store, watchFactory(&fakeWatchProvider{}), resyncer, "topic", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, "user1")
	s.Stop("user1")
	s.Shutdown()

	settled := resyncer.callCount()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, settled, resyncer.callCount(), "a stopped loop must not tick again")
}

func TestScheduler_StartAllSkipsRevoked(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMailbox(ctx, testutil.NewMailbox("active1")))
	revoked := testutil.NewMailbox("revoked1")
	revoked.Status = model.MailboxRevoked
	require.NoError(t, store.SaveMailbox(ctx, revoked))

	s := NewScheduler(store, watchFactory(&fakeWatchProvider{}), &fakeResyncer{}, "topic", time.Hour, nil)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	require.NoError(t, s.StartAll(loopCtx))

	s.mu.Lock()
	_, hasActive := s.cancels["active1"]
	_, hasRevoked := s.cancels["revoked1"]
	s.mu.Unlock()
	s.Shutdown()

	assert.True(t, hasActive)
	assert.False(t, hasRevoked)
}

func TestRenewExpiringWatches(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	// Never registered: watch_expiry is unset, cursor unseeded.
	fresh := testutil.NewMailbox("fresh")
	fresh.HistoryID = 0
	require.NoError(t, store.SaveMailbox(ctx, fresh))

	// Healthy: expiry far in the future, must be left alone.
	healthy := testutil.NewMailbox("healthy")
	healthy.WatchExpiry = time.Now().Add(5 * 24 * time.Hour)
	require.NoError(t, store.SaveMailbox(ctx, healthy))

	provider := &fakeWatchProvider{registration: &service.WatchRegistration{
		HistoryID: 7777,
		Expiry:    time.Now().Add(7 * 24 * time.Hour).UTC(),
	}}

	s := NewScheduler(store, watchFactory(provider), &fakeResyncer{}, "projects/p/topics/gmail", time.Hour, nil)
	require.NoError(t, s.RenewExpiringWatches(ctx))

	assert.Equal(t, []string{"projects/p/topics/gmail"}, provider.topics, "only the expiring watch is renewed")

	mb, err := store.GetMailboxByUser(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, uint64(7777), mb.HistoryID, "first registration seeds the cursor")
	assert.False(t, mb.WatchExpiry.IsZero())

	unchanged, err := store.GetMailboxByUser(ctx, "healthy")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), unchanged.HistoryID, "an already seeded cursor is not overwritten")
}

func TestRenewExpiringWatches_SeededCursorNotRewound(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	mb := testutil.NewMailbox("user1")
	mb.HistoryID = 9000
	require.NoError(t, store.SaveMailbox(ctx, mb))

	provider := &fakeWatchProvider{registration: &service.WatchRegistration{
		HistoryID: 100,
		Expiry:    time.Now().Add(7 * 24 * time.Hour).UTC(),
	}}

	s := NewScheduler(store, watchFactory(provider), &fakeResyncer{}, "topic", time.Hour, nil)
	require.NoError(t, s.RenewExpiringWatches(ctx))

	got, err := store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), got.HistoryID)
}
