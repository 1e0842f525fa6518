package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/session"
)

var base = time.Date(2026, 2, 5, 14, 30, 0, 123456789, time.UTC)

func sampleSession(id string, start time.Time) session.ScanSession {
	tx := -8
	return session.ScanSession{
		ID:        id,
		Type:      session.TypeCombined,
		StartTime: start,
		EndTime:   start.Add(15 * time.Second),
		Duration:  15 * time.Second,
		RadioDevices: []device.RadioDevice{{
			PeripheralID: "5B1E3C2A-0001",
			Name:         "Kitchen Sensor",
			RSSI:         -62,
			Status:       device.StatusConnected,
			Advertisement: &device.Advertisement{
				LocalName:        "KS-1",
				ManufacturerData: []byte{0x4c, 0x00, 0x10},
				ServiceUUIDs:     []string{"180F"},
				TxPower:          &tx,
				Connectable:      true,
			},
			LastSeen: start.Add(2 * time.Second),
		}},
		NetworkDevices: []device.NetworkDevice{{
			IPAddress:    "192.168.1.20",
			MACAddress:   "b8:27:eb:00:11:22",
			Hostname:     "printer",
			Vendor:       "Raspberry Pi Foundation",
			Ports:        []int{80, 631},
			ResponseTime: 4 * time.Millisecond,
			Metadata:     map[string]string{"service": "_ipp._tcp"},
			LastSeen:     start.Add(3 * time.Second),
		}},
	}
}

func backends(t *testing.T) map[string]session.Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "sessions.yaml"))
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]session.Store{"file": fs, "sqlite": db}
}

func ids(sessions []session.ScanSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func TestStore_RoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleSession("s1", base)
			require.NoError(t, st.Save(ctx, want))

			got, err := st.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)

			s := got[0]
			assert.Equal(t, want.ID, s.ID)
			assert.Equal(t, want.Type, s.Type)
			assert.True(t, want.StartTime.Equal(s.StartTime), "start %v != %v", s.StartTime, want.StartTime)
			assert.True(t, want.EndTime.Equal(s.EndTime), "end %v != %v", s.EndTime, want.EndTime)
			assert.Equal(t, want.Duration, s.Duration)

			require.Len(t, s.RadioDevices, 1)
			r := s.RadioDevices[0]
			assert.Equal(t, "Kitchen Sensor", r.Name)
			assert.Equal(t, -62, r.RSSI)
			assert.Equal(t, device.StatusConnected, r.Status)
			require.NotNil(t, r.Advertisement)
			assert.Equal(t, []byte{0x4c, 0x00, 0x10}, r.Advertisement.ManufacturerData)
			require.NotNil(t, r.Advertisement.TxPower)
			assert.Equal(t, -8, *r.Advertisement.TxPower)
			assert.True(t, want.RadioDevices[0].LastSeen.Equal(r.LastSeen))

			require.Len(t, s.NetworkDevices, 1)
			n := s.NetworkDevices[0]
			assert.Equal(t, "192.168.1.20", n.IPAddress)
			assert.Equal(t, []int{80, 631}, n.Ports)
			assert.Equal(t, 4*time.Millisecond, n.ResponseTime)
			assert.Equal(t, "_ipp._tcp", n.Metadata["service"])
		})
	}
}

func TestStore_OrdersNewestFirst(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Save(ctx, sampleSession("old", base.Add(-48*time.Hour))))
			require.NoError(t, st.Save(ctx, sampleSession("new", base)))
			require.NoError(t, st.Save(ctx, sampleSession("mid", base.Add(-time.Hour))))

			got, err := st.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"new", "mid", "old"}, ids(got))
		})
	}
}

func TestStore_SaveReplacesExisting(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := sampleSession("s1", base)
			require.NoError(t, st.Save(ctx, s))

			patched := s.WithEndTime(base.Add(time.Minute))
			require.NoError(t, st.Save(ctx, patched))

			got, err := st.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, time.Minute, got[0].Duration)
		})
	}
}

func TestStore_InProgressSession(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := session.ScanSession{ID: "open", Type: session.TypeRadio, StartTime: base}
			require.NoError(t, st.Save(ctx, s))

			got, err := st.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.False(t, got[0].Completed())
			assert.Empty(t, got[0].RadioDevices)
			assert.Empty(t, got[0].NetworkDevices)
		})
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Save(ctx, sampleSession("a", base)))
			require.NoError(t, st.Save(ctx, sampleSession("b", base.Add(time.Hour))))

			require.NoError(t, st.Delete(ctx, "a"))
			err := st.Delete(ctx, "a")
			assert.True(t, errors.Is(err, session.ErrNotFound), "got %v", err)

			got, err := st.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, ids(got))

			require.NoError(t, st.ClearAll(ctx))
			got, err = st.LoadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStore_RejectsMissingID(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, st.Save(context.Background(), session.ScanSession{StartTime: base}))
		})
	}
}

func TestStore_BacksCatalog(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := session.NewCatalog(st)
			require.NoError(t, c.Load(ctx))
			require.NoError(t, c.Save(ctx, sampleSession("s1", base)))
			require.NoError(t, c.Update(ctx, "s1", base.Add(30*time.Second)))

			s, ok := c.Session("s1")
			require.True(t, ok)
			assert.Equal(t, 30*time.Second, s.Duration)
			assert.Equal(t, 2, c.TotalDevicesScanned())
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(BackendFile, filepath.Join(dir, "s.yaml"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	st, err = Open(BackendSQLite, filepath.Join(dir, "s.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open("postgres", "x")
	assert.Error(t, err)
}

func TestFileStore_Persisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	st, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), sampleSession("s1", base)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 1")
	assert.Contains(t, string(data), "status: connected")
	assert.NoFileExists(t, path+".tmp")

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(got))
}

func TestFileStore_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 9\nsessions: []\n"), 0600))

	st, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = st.LoadAll(context.Background())
	assert.ErrorContains(t, err, "unsupported session file version")
}

func TestFileStore_WatchReportsExternalChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yaml")
	st, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	require.NoError(t, st.Watch(ctx, func() { changed <- struct{}{} }))

	// Writes through the store are not reported.
	require.NoError(t, st.Save(ctx, sampleSession("own", base)))

	// Another process writes the file.
	other, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, other.Save(ctx, sampleSession("foreign", base.Add(time.Hour))))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not report external change")
	}

	got, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foreign", "own"}, ids(got))
}
