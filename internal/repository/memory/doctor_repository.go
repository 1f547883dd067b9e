package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
)

type DoctorRepository struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]doctor.Doctor
}

var _ doctor.Directory = (*DoctorRepository)(nil)

func NewDoctorRepository(doctors ...doctor.Doctor) *DoctorRepository {
	r := &DoctorRepository{doctors: make(map[uuid.UUID]doctor.Doctor, len(doctors))}
	for _, d := range doctors {
		r.Add(d)
	}
	return r
}

// Add inserts or replaces d. A zero ID is assigned.
func (r *DoctorRepository) Add(d doctor.Doctor) uuid.UUID {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
	return d.ID
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *DoctorRepository) List(ctx context.Context) ([]*doctor.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*doctor.Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		out = append(out, &d)
	}
	slices.SortFunc(out, func(a, b *doctor.Doctor) int {
		return cmp.Or(
			cmp.Compare(a.LastName, b.LastName),
			cmp.Compare(a.FirstName, b.FirstName),
		)
	})
	return out, nil
}
