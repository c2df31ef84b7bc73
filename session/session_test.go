package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetDelete(t *testing.T) {
	store := NewStore()
	s := &BrowserSession{ID: uuid.New(), CreatedAt: time.Now()}

	store.Set(s)
	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, store.Len())

	store.Delete(s.ID)
	_, err = store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestStore_OlderThan(t *testing.T) {
	store := NewStore()
	old := &BrowserSession{ID: uuid.New(), CreatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &BrowserSession{ID: uuid.New(), CreatedAt: time.Now()}
	store.Set(old)
	store.Set(fresh)

	stale := store.OlderThan(time.Hour)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
	assert.Len(t, store.List(), 2)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := &BrowserSession{ID: uuid.New()}
			store.Set(s)
			_, _ = store.Get(s.ID)
			store.Delete(s.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, store.Len())
}

func TestBrowserSession_MarkReleased(t *testing.T) {
	s := &BrowserSession{ID: uuid.New()}
	assert.False(t, s.Released())
	assert.True(t, s.markReleased())
	assert.False(t, s.markReleased())
	assert.True(t, s.Released())
}
