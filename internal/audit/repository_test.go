package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rleusmann/Cambridge-audio-custom/internal/db"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(setupTestDB(t))
}

func strPtr(s string) *string { return &s }

func TestRepository_InsertEvent(t *testing.T) {
	repo := setupTestRepo(t)

	event, err := repo.InsertEvent(WriteEventInput{
		Type:      string(EventCommandSucceeded),
		RequestID: strPtr("req-123"),
		UnitID:    strPtr("0020c2d8"),
		Command:   strPtr("select_source"),
		Message:   "select_source succeeded",
		Payload:   map[string]any{"source": "TV"},
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.NotEmpty(t, event.EventID)
	require.Equal(t, string(EventCommandSucceeded), event.Type)
	require.Equal(t, EventLevelInfo, event.Level)
	require.Equal(t, "req-123", *event.RequestID)
	require.Equal(t, "0020c2d8", *event.UnitID)
	require.Equal(t, "select_source", *event.Command)
	require.Equal(t, "TV", event.Payload["source"])
	require.WithinDuration(t, time.Now(), event.Timestamp, 5*time.Second)
}

func TestRepository_InsertEvent_NilOptionalFields(t *testing.T) {
	repo := setupTestRepo(t)

	level := EventLevelError
	event, err := repo.InsertEvent(WriteEventInput{
		Type:    string(EventRefreshFailed),
		Level:   &level,
		Message: "cambridge_audio_10.0.0.5 unavailable",
	})
	require.NoError(t, err)
	require.Equal(t, EventLevelError, event.Level)
	require.Nil(t, event.RequestID)
	require.Nil(t, event.UnitID)
	require.Nil(t, event.Command)
	require.NotNil(t, event.Payload)
	require.Empty(t, event.Payload)
}

func TestRepository_GetEvent_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	event, err := repo.GetEvent("missing")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestRepository_QueryEvents_Filters(t *testing.T) {
	repo := setupTestRepo(t)

	warn := EventLevelWarn
	inputs := []WriteEventInput{
		{Type: string(EventSystemStartup), Message: "started"},
		{Type: string(EventCommandSucceeded), UnitID: strPtr("unit-a"), Command: strPtr("turn_on"), Message: "ok"},
		{Type: string(EventCommandFailed), Level: &warn, UnitID: strPtr("unit-a"), Command: strPtr("volume_set"), Message: "failed"},
		{Type: string(EventCommandSucceeded), UnitID: strPtr("unit-b"), Command: strPtr("turn_on"), Message: "ok"},
	}
	for _, input := range inputs {
		_, err := repo.InsertEvent(input)
		require.NoError(t, err)
	}

	events, total, err := repo.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, 4, total)

	events, total, err = repo.QueryEvents(EventQueryFilters{Type: strPtr(string(EventCommandSucceeded))})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 2, total)

	events, _, err = repo.QueryEvents(EventQueryFilters{Level: &warn})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "volume_set", *events[0].Command)

	events, _, err = repo.QueryEvents(EventQueryFilters{UnitID: strPtr("unit-a"), Command: strPtr("turn_on")})
	require.NoError(t, err)
	require.Len(t, events, 1)

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	_, total, err = repo.QueryEvents(EventQueryFilters{StartDate: &from, EndDate: &to})
	require.NoError(t, err)
	require.Equal(t, 4, total)

	oldFrom := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	oldTo := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	events, total, err = repo.QueryEvents(EventQueryFilters{StartDate: &oldFrom, EndDate: &oldTo})
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, 0, total)
}

func TestRepository_QueryEvents_PaginationAndOrder(t *testing.T) {
	repo := setupTestRepo(t)

	for _, message := range []string{"first", "second", "third", "fourth", "fifth"} {
		_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: message})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	events, total, err := repo.QueryEvents(EventQueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, events, 2)
	require.Equal(t, "fifth", events[0].Message)
	require.Equal(t, "fourth", events[1].Message)

	events, _, err = repo.QueryEvents(EventQueryFilters{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "first", events[0].Message)
}

func TestRepository_Prune(t *testing.T) {
	repo := setupTestRepo(t)

	for i := 0; i < 3; i++ {
		_, err := repo.InsertEvent(WriteEventInput{Type: string(EventSystemStartup), Message: "M"})
		require.NoError(t, err)
	}

	deleted, err := repo.PruneOldEvents(30)
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)

	deleted, err = repo.PruneBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	_, total, err := repo.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 0, total)
}
