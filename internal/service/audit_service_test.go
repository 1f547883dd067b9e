package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

type blockingAuditRepo struct {
	release chan struct{}
}

func (r *blockingAuditRepo) Create(ctx context.Context, _ *domain.AuditLog) error {
	<-r.release
	return errors.New("storage offline")
}

func TestAuditService_PersistsAndDrains(t *testing.T) {
	m := metrics.NewCollector("audit_test")
	repo := memory.NewAuditRepository()
	svc := NewAuditService(repo, m, zap.NewNop())

	actor := Actor{ID: uuid.New(), Role: domain.RoleDoctor}
	for range 3 {
		svc.LogAsync(AuditEntry{Actor: actor, Action: domain.ActionComplete, ResourceType: "appointment", ResourceID: "x"})
	}
	svc.Shutdown(time.Second)

	entries := repo.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, actor.ID, entries[0].ActorID)
	assert.Equal(t, domain.RoleDoctor, entries[0].ActorRole)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.AuditEntriesTotal))
}

func TestAuditService_DropsWhenBufferFull(t *testing.T) {
	m := metrics.NewCollector("audit_test")
	repo := &blockingAuditRepo{release: make(chan struct{})}
	svc := newAuditService(repo, m, zap.NewNop(), 1)

	// The worker takes the first entry and blocks; the second fills the
	// buffer; the third is dropped.
	svc.LogAsync(AuditEntry{Action: domain.ActionBook})
	require.Eventually(t, func() bool { return len(svc.entries) == 0 }, time.Second, time.Millisecond)
	svc.LogAsync(AuditEntry{Action: domain.ActionBook})
	svc.LogAsync(AuditEntry{Action: domain.ActionBook})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditBufferDropped))

	close(repo.release)
	svc.Shutdown(time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.AuditEntriesTotal))
}

func TestAuditService_LogAfterShutdownIsDropped(t *testing.T) {
	m := metrics.NewCollector("audit_test")
	repo := memory.NewAuditRepository()
	svc := NewAuditService(repo, m, zap.NewNop())
	svc.Shutdown(time.Second)

	require.NotPanics(t, func() {
		svc.LogAsync(AuditEntry{Action: domain.ActionCancel, ResourceType: "appointment", ResourceID: "late"})
		svc.Shutdown(time.Second)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditBufferDropped))
	assert.Empty(t, repo.Entries())
}
