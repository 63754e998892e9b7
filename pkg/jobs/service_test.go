package jobs

import (
	"context"
	"testing"

	"github.com/bookferry/bookferry/internal/testdb"
	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasActiveJobByType_NoJobs(t *testing.T) {
	svc := NewService(testdb.New(t))

	hasActive, err := svc.HasActiveJobByType(context.Background(), models.JobTypePass)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJobByType_InProgressJob(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	job := &models.Job{
		Type:       models.JobTypePass,
		Status:     models.JobStatusInProgress,
		DataParsed: &models.JobPassData{Trigger: models.TriggerManual},
	}
	require.NoError(t, svc.CreateJob(ctx, job))

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypePass)
	require.NoError(t, err)
	assert.True(t, hasActive)

	hasActive, err = svc.HasActiveJobByType(ctx, models.JobTypeSweep)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestUpdateJob_PersistsData(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	job := &models.Job{
		Type:       models.JobTypePass,
		Status:     models.JobStatusInProgress,
		DataParsed: &models.JobPassData{Trigger: models.TriggerSchedule},
	}
	require.NoError(t, svc.CreateJob(ctx, job))

	job.Status = models.JobStatusCompleted
	job.DataParsed = &models.JobPassData{Trigger: models.TriggerSchedule, Processed: 2, Failed: 1}
	err := svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"status", "data"}})
	require.NoError(t, err)

	got, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	data, ok := got.DataParsed.(*models.JobPassData)
	require.True(t, ok)
	assert.Equal(t, 2, data.Processed)
	assert.Equal(t, 1, data.Failed)
}

func TestRetrieveJob_NotFound(t *testing.T) {
	svc := NewService(testdb.New(t))

	_, err := svc.RetrieveJob(context.Background(), RetrieveJobOptions{ID: pointerutil.Int(42)})
	require.Error(t, err)
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "not_found", e.Code)
}

func TestFailOrphanedJobs(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	mine := "aaaa"
	theirs := "bbbb"
	jobs := []*models.Job{
		{Type: models.JobTypePass, Status: models.JobStatusInProgress, ProcessID: &mine},
		{Type: models.JobTypePass, Status: models.JobStatusInProgress, ProcessID: &theirs},
		{Type: models.JobTypePass, Status: models.JobStatusCompleted, ProcessID: &theirs},
	}
	for _, j := range jobs {
		require.NoError(t, svc.CreateJob(ctx, j))
	}

	n, err := svc.FailOrphanedJobs(ctx, mine)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, total, err := svc.ListJobsWithTotal(ctx, ListJobsOptions{Statuses: []string{models.JobStatusFailed}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, jobs[1].ID, list[0].ID)
}
