package fake

import (
	"context"
	"sync"

	"github.com/adjutant-go/adjutant/services"
)

// Quota is an in-memory services.QuotaClient for one service.
type Quota struct {
	faults

	service services.Service

	mu     sync.Mutex
	quotas map[string]map[string]services.Quota
	sets   int
}

var _ services.QuotaClient = (*Quota)(nil)

func NewQuota(service services.Service) *Quota {
	return &Quota{
		service: service,
		quotas:  map[string]map[string]services.Quota{},
	}
}

func (q *Quota) Service() services.Service {
	return q.service
}

func (q *Quota) GetQuota(ctx context.Context, region, projectID string) (services.Quota, error) {
	if err := q.check(OpGetQuota); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.quotas[region][projectID].Clone(), nil
}

func (q *Quota) SetQuota(ctx context.Context, region, projectID string, quota services.Quota) error {
	if err := q.check(OpSetQuota); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.sets++
	q.setLocked(region, projectID, quota)

	return nil
}

// Seed sets quota values without counting as a client write.
func (q *Quota) Seed(region, projectID string, quota services.Quota) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.setLocked(region, projectID, quota)
}

func (q *Quota) setLocked(region, projectID string, quota services.Quota) {
	byProject, ok := q.quotas[region]
	if !ok {
		byProject = map[string]services.Quota{}
		q.quotas[region] = byProject
	}

	current, ok := byProject[projectID]
	if !ok {
		current = services.Quota{}
		byProject[projectID] = current
	}

	for k, v := range quota {
		current[k] = v
	}
}

// Value returns a single quota value.
func (q *Quota) Value(region, projectID, resource string) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.quotas[region][projectID][resource]
	return v, ok
}

// Sets returns the number of SetQuota calls that went through.
func (q *Quota) Sets() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.sets
}

// MeteredQuota is a quota client whose service also reports current usage.
type MeteredQuota struct {
	*Quota

	usageMu sync.Mutex
	usage   map[string]map[string]services.Quota
}

var _ services.UsageReporter = (*MeteredQuota)(nil)

func NewMeteredQuota(service services.Service) *MeteredQuota {
	return &MeteredQuota{
		Quota: NewQuota(service),
		usage: map[string]map[string]services.Quota{},
	}
}

func (m *MeteredQuota) GetUsage(ctx context.Context, region, projectID string) (services.Quota, error) {
	if err := m.check(OpGetUsage); err != nil {
		return nil, err
	}

	m.usageMu.Lock()
	defer m.usageMu.Unlock()

	return m.usage[region][projectID].Clone(), nil
}

// SetUsage records current consumption for a project.
func (m *MeteredQuota) SetUsage(region, projectID string, usage services.Quota) {
	m.usageMu.Lock()
	defer m.usageMu.Unlock()

	if m.usage[region] == nil {
		m.usage[region] = map[string]services.Quota{}
	}
	m.usage[region][projectID] = usage.Clone()
}
