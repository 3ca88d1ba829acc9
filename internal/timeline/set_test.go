package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/fedistream/internal/models"
)

func TestSetHasEveryView(t *testing.T) {
	s := NewSet(Options{Capacity: 5})
	for _, view := range models.AllViews() {
		b := s.Get(view)
		require.NotNil(t, b, "view %s", view)
		require.Equal(t, view, b.View())
		require.Equal(t, 5, b.Capacity())
	}
	require.Nil(t, s.Get(models.View("lists")))
}

func TestSetBroadcastOnlyTouchesListedViews(t *testing.T) {
	s := NewSet(Options{Capacity: 5, Policy: func(models.View) TrimPolicy { return NeverTrim }})
	s.Get(models.ViewHome).Append(status("42"))
	s.Get(models.ViewLocal).Append(status("42"))
	s.Get(models.ViewPublic).Append(status("42"))

	removed := s.DeleteEverywhere("42", models.ViewHome, models.ViewLocal)
	require.Equal(t, 2, removed)
	require.True(t, s.Get(models.ViewPublic).Contains("42"))

	s.ClearAll()
	for view, n := range s.Stats() {
		require.Zero(t, n, "view %s", view)
	}
}
