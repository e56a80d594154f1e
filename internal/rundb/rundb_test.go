package rundb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordRun_AssignsID(t *testing.T) {
	db := openTestDB(t)

	run := Run{
		Policy:       "gicp",
		TargetFile:   "target.pcd",
		SourceFile:   "source.pcd",
		TargetPoints: 100,
		SourcePoints: 90,
		InitialCost:  12.5,
		FinalCost:    0.001,
		Iterations:   7,
		Converged:    true,
		Pose:         "[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1]",
	}
	require.NoError(t, db.RecordRun(&run))
	assert.NotEmpty(t, run.RunID)
}

func TestRecentRuns_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		run := Run{
			Policy:     "photometric",
			Iterations: i + 1,
			FinalCost:  float64(i),
			Converged:  i%2 == 0,
		}
		require.NoError(t, db.RecordRun(&run))
	}

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.NotEmpty(t, r.RunID)
		assert.Equal(t, "photometric", r.Policy)
		assert.False(t, r.CreatedAt.IsZero())
	}

	limited, err := db.RecentRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
