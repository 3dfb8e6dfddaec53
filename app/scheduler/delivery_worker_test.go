package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskRepo struct {
	mu      sync.Mutex
	due     []*models.DeliveryTask
	claimed bool
	updated []*models.DeliveryTask
}

func (r *fakeTaskRepo) ByID(ctx context.Context, id uint) (*models.DeliveryTask, error) {
	return nil, nil
}

func (r *fakeTaskRepo) Save(ctx context.Context, t *models.DeliveryTask) error { return nil }

// ClaimDue hands out the preset batch exactly once, mirroring the claim
// semantics of the database implementation
func (r *fakeTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed {
		return nil, nil
	}
	r.claimed = true
	for _, t := range r.due {
		t.Status = models.DeliveryTaskStatusRunning
		t.Attempts++
	}
	return r.due, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, t *models.DeliveryTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, t)
	return nil
}

type fakeDeliveryFlow struct {
	mu         sync.Mutex
	err        error
	recipients []uint
}

func (f *fakeDeliveryFlow) Deliver(ctx context.Context, recipientID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, recipientID)
	return f.err
}

func newTestWorker(repo *fakeTaskRepo, emailFlow, smsFlow *fakeDeliveryFlow) *DeliveryWorker {
	return NewDeliveryWorker(repo, emailFlow, smsFlow, nil, DeliveryWorkerOptions{
		PollInterval: time.Hour, // tests drive runOnce directly
		BatchSize:    10,
		PoolSize:     2,
		TaskTimeout:  time.Second,
		MaxAttempts:  3,
	})
}

func pendingTask(id, recipientID uint, channel models.CampaignChannel) *models.DeliveryTask {
	return &models.DeliveryTask{
		ID:          id,
		CampaignID:  1,
		RecipientID: recipientID,
		Channel:     channel,
		Status:      models.DeliveryTaskStatusPending,
		ScheduledAt: utils.UTCNow().Add(-time.Second),
	}
}

func TestWorkerMarksSuccessfulTasksDone(t *testing.T) {
	repo := &fakeTaskRepo{due: []*models.DeliveryTask{
		pendingTask(1, 100, models.CampaignChannelEmail),
		pendingTask(2, 101, models.CampaignChannelSMS),
	}}
	emailFlow := &fakeDeliveryFlow{}
	smsFlow := &fakeDeliveryFlow{}
	w := newTestWorker(repo, emailFlow, smsFlow)

	w.runOnce(context.Background())

	assert.Equal(t, []uint{100}, emailFlow.recipients)
	assert.Equal(t, []uint{101}, smsFlow.recipients)

	require.Len(t, repo.updated, 2)
	for _, task := range repo.updated {
		assert.Equal(t, models.DeliveryTaskStatusDone, task.Status)
		assert.NotNil(t, task.FinishedAt)
		assert.Nil(t, task.LastError)
	}
}

func TestWorkerRequeuesFailedEmailTask(t *testing.T) {
	repo := &fakeTaskRepo{due: []*models.DeliveryTask{
		pendingTask(1, 100, models.CampaignChannelEmail),
	}}
	emailFlow := &fakeDeliveryFlow{err: errors.New("smtp connection refused")}
	w := newTestWorker(repo, emailFlow, &fakeDeliveryFlow{})

	before := utils.UTCNow()
	w.runOnce(context.Background())

	require.Len(t, repo.updated, 1)
	task := repo.updated[0]
	assert.Equal(t, models.DeliveryTaskStatusPending, task.Status)
	assert.True(t, task.ScheduledAt.After(before))
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "smtp connection refused")
	assert.Nil(t, task.StartedAt)
}

func TestWorkerFailsTaskAfterMaxAttempts(t *testing.T) {
	task := pendingTask(1, 100, models.CampaignChannelEmail)
	task.Attempts = 2 // the claim bumps this to 3, the configured maximum

	repo := &fakeTaskRepo{due: []*models.DeliveryTask{task}}
	emailFlow := &fakeDeliveryFlow{err: errors.New("smtp connection refused")}
	w := newTestWorker(repo, emailFlow, &fakeDeliveryFlow{})

	w.runOnce(context.Background())

	require.Len(t, repo.updated, 1)
	assert.Equal(t, models.DeliveryTaskStatusFailed, repo.updated[0].Status)
	assert.NotNil(t, repo.updated[0].FinishedAt)
}

func TestWorkerFailsTaskWithUnknownChannel(t *testing.T) {
	repo := &fakeTaskRepo{due: []*models.DeliveryTask{
		pendingTask(1, 100, "fax"),
	}}
	w := newTestWorker(repo, &fakeDeliveryFlow{}, &fakeDeliveryFlow{})

	w.runOnce(context.Background())

	require.Len(t, repo.updated, 1)
	assert.Equal(t, models.DeliveryTaskStatusFailed, repo.updated[0].Status)
}

func TestWorkerStartStops(t *testing.T) {
	repo := &fakeTaskRepo{}
	w := newTestWorker(repo, &fakeDeliveryFlow{}, &fakeDeliveryFlow{})

	stop := w.Start(context.Background())
	stop()

	// After cancellation the loop must not claim again
	repo.mu.Lock()
	repo.claimed = false
	repo.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.False(t, repo.claimed)
}

func TestWorkerBackoffGrowsWithAttempts(t *testing.T) {
	w := newTestWorker(&fakeTaskRepo{}, &fakeDeliveryFlow{}, &fakeDeliveryFlow{})

	assert.Equal(t, 10*time.Second, w.backoff(0))
	assert.Equal(t, 10*time.Second, w.backoff(1))
	assert.Equal(t, 30*time.Second, w.backoff(3))
}
