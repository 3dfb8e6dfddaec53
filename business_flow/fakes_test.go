package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
)

// Package-level in-memory fakes for the repository interfaces. They keep the
// coordinator tests independent of a database while still letting assertions
// inspect every row the flow writes.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
	updates   int
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id], nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID.String() == uuid {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	r.updates++
	return nil
}

type fakeUserRepo struct {
	users map[uint]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) Save(ctx context.Context, u *models.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) ByUUID(ctx context.Context, uuid string) (*models.User, error) {
	for _, u := range r.users {
		if u.UUID.String() == uuid {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type fakeRecipientRepo struct {
	mu         sync.Mutex
	nextID     uint
	recipients map[uint]*models.CampaignRecipient
	saveErr    error
	updated    []*models.CampaignRecipient
}

func newFakeRecipientRepo(recipients ...*models.CampaignRecipient) *fakeRecipientRepo {
	r := &fakeRecipientRepo{recipients: make(map[uint]*models.CampaignRecipient)}
	for _, rec := range recipients {
		r.recipients[rec.ID] = rec
		if rec.ID > r.nextID {
			r.nextID = rec.ID
		}
	}
	return r
}

func (r *fakeRecipientRepo) ByID(ctx context.Context, id uint) (*models.CampaignRecipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recipients[id], nil
}

func (r *fakeRecipientRepo) Save(ctx context.Context, rec *models.CampaignRecipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if rec.ID == 0 {
		r.nextID++
		rec.ID = r.nextID
	}
	r.recipients[rec.ID] = rec
	return nil
}

func (r *fakeRecipientRepo) ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.CampaignRecipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CampaignRecipient
	for _, rec := range r.recipients {
		if filter.CampaignID != nil && rec.CampaignID != *filter.CampaignID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRecipientRepo) Count(ctx context.Context, filter models.RecipientFilter) (int64, error) {
	recs, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(recs)), err
}

func (r *fakeRecipientRepo) Update(ctx context.Context, rec *models.CampaignRecipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients[rec.ID] = rec
	r.updated = append(r.updated, rec)
	return nil
}

func (r *fakeRecipientRepo) ByIDWithRelations(ctx context.Context, id uint) (*models.CampaignRecipient, error) {
	return r.ByID(ctx, id)
}

func (r *fakeRecipientRepo) all() []*models.CampaignRecipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.CampaignRecipient, 0, len(r.recipients))
	for _, rec := range r.recipients {
		out = append(out, rec)
	}
	return out
}

type fakeTaskRepo struct {
	mu      sync.Mutex
	nextID  uint
	tasks   []*models.DeliveryTask
	failAt  int // 1-based Save call that errors, 0 disables
	saves   int
	updated []*models.DeliveryTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{}
}

func (r *fakeTaskRepo) ByID(ctx context.Context, id uint) (*models.DeliveryTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeTaskRepo) Save(ctx context.Context, t *models.DeliveryTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failAt > 0 && r.saves == r.failAt {
		return fmt.Errorf("simulated task insert failure")
	}
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	r.tasks = append(r.tasks, t)
	return nil
}

func (r *fakeTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.DeliveryTask
	for _, t := range r.tasks {
		if len(due) >= limit {
			break
		}
		if t.Status == models.DeliveryTaskStatusPending && !t.ScheduledAt.After(now) {
			t.Status = models.DeliveryTaskStatusRunning
			t.Attempts++
			due = append(due, t)
		}
	}
	return due, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, t *models.DeliveryTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, t)
	return nil
}

func (r *fakeTaskRepo) all() []*models.DeliveryTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.DeliveryTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	return nil, nil
}

func (r *fakeAuditRepo) Save(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) ListBySubject(ctx context.Context, subjectType string, subjectID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.SubjectType != nil && *e.SubjectType == subjectType && e.SubjectID != nil && *e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) countByAction(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// sliceIterator adapts a contact slice to the ContactIterator cursor
type sliceIterator struct {
	contacts []*models.Contact
	pos      int
	readErr  error
	errAt    int // 1-based position whose Contact() call errors, 0 disables
	closed   bool
	closeErr error
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.contacts) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Contact() (*models.Contact, error) {
	if it.errAt > 0 && it.pos == it.errAt {
		return nil, fmt.Errorf("simulated cursor read failure")
	}
	return it.contacts[it.pos-1], nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return it.closeErr
}

// fakeResolver serves a fixed contact slice and records the campaign status
// observed when Resolve was called
type fakeResolver struct {
	contacts        []*models.Contact
	resolveErr      error
	errAt           int
	statusAtResolve models.CampaignStatus
	lastIterator    *sliceIterator
}

func (f *fakeResolver) Resolve(ctx context.Context, campaign *models.Campaign) (repository.ContactIterator, error) {
	f.statusAtResolve = campaign.Status
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	f.lastIterator = &sliceIterator{contacts: f.contacts, errAt: f.errAt}
	return f.lastIterator, nil
}

func (f *fakeResolver) Count(ctx context.Context, campaign *models.Campaign) (int64, error) {
	return int64(len(f.contacts)), nil
}
