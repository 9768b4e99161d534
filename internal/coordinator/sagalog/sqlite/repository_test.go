package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryptosim/trading-sagas/internal/coordinator/sagalog"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "sagas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndGetLatest(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	entries := []*sagalog.Entry{
		{
			SagaID:        "saga-1",
			Status:        sagalog.StatusStarted,
			Payload:       `{"symbol":"BTC","amount":"0.01"}`,
			ErrorMessages: "[]",
			TraceID:       "0af7651916cd43dd8448eb211c80319c",
			SpanID:        "b7ad6b7169203331",
			UpdatedAt:     base,
		},
		{
			SagaID:        "saga-1",
			Status:        sagalog.StatusStepDone,
			CurrentStep:   "Price_Lookup_Step",
			ErrorMessages: "[]",
			UpdatedAt:     base.Add(50 * time.Millisecond),
		},
		{
			SagaID:        "saga-1",
			Status:        sagalog.StatusCompleted,
			CurrentStep:   "Trade_Record_Step",
			ErrorMessages: "[]",
			UpdatedAt:     base.Add(200 * time.Millisecond),
		},
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(ctx, e))
	}

	latest, err := repo.GetLatest(ctx, "saga-1")
	require.NoError(t, err)
	require.Equal(t, sagalog.StatusCompleted, latest.Status)
	require.Equal(t, "Trade_Record_Step", latest.CurrentStep)
	require.Equal(t, "[]", latest.ErrorMessages)
	require.True(t, latest.UpdatedAt.Equal(base.Add(200*time.Millisecond)))
}

func TestGetLatestUnknownSaga(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetLatest(context.Background(), "no-such-saga")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestSaveKeepsErrorMessages(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := sagalog.NewEntry(ctx, "saga-2", sagalog.StatusCompensatedCritical,
		"Balance_Debit_Step", "", []string{"refund failed: connection refused"})
	require.NoError(t, repo.Save(ctx, entry))

	latest, err := repo.GetLatest(ctx, "saga-2")
	require.NoError(t, err)
	require.Equal(t, sagalog.StatusCompensatedCritical, latest.Status)
	require.Contains(t, latest.ErrorMessages, "refund failed")
	// No active span in the test context, so trace fields stay empty.
	require.Empty(t, latest.TraceID)
}
