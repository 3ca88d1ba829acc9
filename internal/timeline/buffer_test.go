package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/fedistream/internal/models"
)

func status(id string) models.Entry {
	return models.Entry{
		ID:      id,
		Kind:    models.EntryStatus,
		Payload: []byte(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

func ids(entries []models.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestBufferAppendNewestFirst(t *testing.T) {
	b := NewBuffer(models.ViewHome, 10, NeverTrim)
	b.Append(status("1"))
	b.Append(status("2"))
	b.Append(status("3"))

	require.Equal(t, []string{"3", "2", "1"}, ids(b.Entries()))
}

func TestBufferAppendSameIDReplacesInPlace(t *testing.T) {
	b := NewBuffer(models.ViewHome, 10, NeverTrim)
	b.Append(status("1"))
	b.Append(status("2"))

	updated := status("1")
	updated.Payload = []byte(`{"id":"1","content":"again"}`)
	b.Append(updated)

	require.Equal(t, []string{"2", "1"}, ids(b.Entries()))
	require.JSONEq(t, `{"id":"1","content":"again"}`, string(b.Entries()[1].Payload))
}

func TestBufferTrimDropsTailNotHead(t *testing.T) {
	b := NewBuffer(models.ViewHome, 3, AlwaysTrim)
	for i := 1; i <= 5; i++ {
		b.Append(status(fmt.Sprint(i)))
	}
	require.Equal(t, []string{"5", "4", "3"}, ids(b.Entries()))
}

func TestBufferNoTrimWhileHeading(t *testing.T) {
	b := NewBuffer(models.ViewHome, 3, AlwaysTrim)
	b.SetHeading(true)
	for i := 1; i <= 6; i++ {
		require.Zero(t, b.Append(status(fmt.Sprint(i))))
	}
	require.Equal(t, 6, b.Len())
	require.Zero(t, b.Archive())

	b.SetHeading(false)
	require.Equal(t, 3, b.Archive())
	require.Equal(t, []string{"6", "5", "4"}, ids(b.Entries()))
}

func TestBufferProbabilisticTrimIsBounded(t *testing.T) {
	const (
		capacity = 40
		slack    = 10
	)
	policy := NewSeededTrim(0.2, slack, 42)
	b := NewBuffer(models.ViewPublic, capacity, policy)

	trims := 0
	for i := 0; i < 5000; i++ {
		if b.Append(status(fmt.Sprint(i))) > 0 {
			trims++
		}
		require.LessOrEqual(t, b.Len(), capacity+slack+1)
	}
	// Trimming happens, but not on every append past capacity.
	require.Greater(t, trims, 0)
	require.Less(t, trims, 5000-capacity)
	require.Equal(t, "4999", b.Entries()[0].ID)
}

func TestBufferDeleteByIDIdempotent(t *testing.T) {
	b := NewBuffer(models.ViewHome, 10, NeverTrim)
	b.Append(status("1"))
	b.Append(status("2"))

	require.Equal(t, 1, b.DeleteByID("1"))
	require.Zero(t, b.DeleteByID("1"))
	require.Equal(t, []string{"2"}, ids(b.Entries()))
	require.Zero(t, b.DeleteByID("missing"))
}

func TestBufferDeleteAndAppendConverge(t *testing.T) {
	deleteFirst := NewBuffer(models.ViewHome, 10, NeverTrim)
	deleteFirst.DeleteByID("42")
	deleteFirst.Append(status("42"))
	deleteFirst.DeleteByID("42")
	require.False(t, deleteFirst.Contains("42"))

	appendFirst := NewBuffer(models.ViewHome, 10, NeverTrim)
	appendFirst.Append(status("42"))
	appendFirst.DeleteByID("42")
	require.False(t, appendFirst.Contains("42"))
}

func TestBufferDeleteMatchesReblogAndNotificationRefs(t *testing.T) {
	b := NewBuffer(models.ViewNotifications, 10, NeverTrim)
	b.Append(models.Entry{ID: "n1", Kind: models.EntryNotification, RefID: "s1"})
	b.Append(models.Entry{ID: "n2", Kind: models.EntryNotification})

	require.Equal(t, 1, b.DeleteByID("s1"))
	require.Equal(t, []string{"n2"}, ids(b.Entries()))
}

func TestBufferReplaceByID(t *testing.T) {
	b := NewBuffer(models.ViewHome, 10, NeverTrim)
	b.Append(status("1"))

	edited := models.Entry{ID: "1", Kind: models.EntryStatus, Payload: []byte(`{"id":"1","edited":true}`)}
	require.Equal(t, 1, b.ReplaceByID(edited))
	require.JSONEq(t, `{"id":"1","edited":true}`, string(b.Entries()[0].Payload))
	require.Zero(t, b.ReplaceByID(status("missing")))
}

func TestBufferResetAndClear(t *testing.T) {
	b := NewBuffer(models.ViewLocal, 10, NeverTrim)
	b.Reset([]models.Entry{status("3"), status("2")})
	require.Equal(t, []string{"3", "2"}, ids(b.Entries()))
	b.Clear()
	require.Zero(t, b.Len())
}
