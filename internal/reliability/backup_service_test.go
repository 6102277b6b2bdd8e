package reliability

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore keeps uploaded objects in memory.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []ObjectInfo
	for key, data := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			infos = append(infos, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func backupKey(t time.Time) string {
	return backupPrefix + t.Format(backupTimestampFmt) + ".tar.gz"
}

func TestListBackupsNewestFirst(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Now()
	for _, age := range []time.Duration{48 * time.Hour, time.Hour, 24 * time.Hour} {
		store.objects[backupKey(now.Add(-age))] = []byte("archive")
	}
	store.objects["compass-backup-not-a-timestamp.tar.gz"] = []byte("junk")
	store.objects["unrelated.txt"] = []byte("junk")

	svc := NewBackupService(store, nil, t.TempDir(), 30, zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)

	for i := 1; i < len(backups); i++ {
		assert.True(t, backups[i-1].Timestamp.After(backups[i].Timestamp))
	}
	assert.Equal(t, int64(7), backups[0].SizeBytes)
}

func TestRotateOldBackupsKeepsMinimum(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Now()
	// All five backups are far past the retention window.
	for i := 0; i < 5; i++ {
		store.objects[backupKey(now.Add(-time.Duration(100+i)*24*time.Hour))] = []byte("archive")
	}

	svc := NewBackupService(store, nil, t.TempDir(), 30, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, minBackupsToKeep)
}

func TestRotateOldBackupsRespectsRetention(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Now()
	ages := []time.Duration{
		1 * 24 * time.Hour,
		2 * 24 * time.Hour,
		3 * 24 * time.Hour,
		10 * 24 * time.Hour,
		60 * 24 * time.Hour,
	}
	for _, age := range ages {
		store.objects[backupKey(now.Add(-age))] = []byte("archive")
	}

	svc := NewBackupService(store, nil, t.TempDir(), 30, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))

	// Only the 60-day-old backup is past retention and outside the
	// newest-three protection.
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 4)
	for _, b := range backups {
		assert.Less(t, b.AgeHours, int64(31*24))
	}
}

func TestRotateOldBackupsZeroRetentionKeepsAll(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Now()
	for i := 0; i < 6; i++ {
		store.objects[backupKey(now.Add(-time.Duration(100+i)*24*time.Hour))] = []byte("archive")
	}

	svc := NewBackupService(store, nil, t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 6)
}

func TestCreateBackupWithNoDatabases(t *testing.T) {
	store := newFakeObjectStore()
	svc := NewBackupService(store, nil, t.TempDir(), 30, zerolog.Nop())

	require.NoError(t, svc.CreateBackup(context.Background()))

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Filename, backupPrefix)
	assert.Greater(t, backups[0].SizeBytes, int64(0))
}
