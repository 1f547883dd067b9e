package appointment

import (
	"time"

	"github.com/google/uuid"
)

// State transitions possibilities:
//
//	scheduled → scheduled (reschedule)
//	scheduled → cancelled
//	scheduled → completed
//
// cancelled and completed are terminal.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;<-:create" json:"created_at"`
	ModifiedAt time.Time `gorm:"column:modified_at;not null" json:"modified_at"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`

	StartTime time.Time `gorm:"column:start_time;not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	Reason    string    `gorm:"column:reason;type:text;not null" json:"reason"`
	Status    Status    `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index" json:"status"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

// IsActive reports whether the appointment still occupies its time window
// for conflict detection.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusScheduled
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusScheduled: {StatusScheduled, StatusCancelled, StatusCompleted},
		StatusCancelled: {},
		StatusCompleted: {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// Clone returns a copy that callers may mutate freely.
func (a *Appointment) Clone() *Appointment {
	c := *a
	return &c
}

type BookCommand struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	BookedBy  uuid.UUID
}

// Update carries a partial modification. A nil field is absent and leaves the
// stored value untouched.
type Update struct {
	StartTime *time.Time
	EndTime   *time.Time
	Reason    *string
	Status    *Status
}

func (u *Update) ChangesTime() bool {
	return u.StartTime != nil || u.EndTime != nil
}

func (u *Update) IsEmpty() bool {
	return u.StartTime == nil && u.EndTime == nil && u.Reason == nil && u.Status == nil
}

// Window returns the effective interval after merging u onto a.
func (u *Update) Window(a *Appointment) (start, end time.Time) {
	start, end = a.StartTime, a.EndTime
	if u.StartTime != nil {
		start = *u.StartTime
	}
	if u.EndTime != nil {
		end = *u.EndTime
	}
	return start, end
}

// ApplyTo writes every present field onto a and stamps ModifiedAt.
func (u *Update) ApplyTo(a *Appointment, now time.Time) {
	if u.StartTime != nil {
		a.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		a.EndTime = *u.EndTime
	}
	if u.Reason != nil {
		a.Reason = *u.Reason
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	a.ModifiedAt = now
}

// Filter selects appointments from a Repository. Zero-valued fields do not
// constrain the result. Results are always ordered by StartTime ascending.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status

	// StartsFrom keeps appointments with StartTime >= StartsFrom.
	StartsFrom *time.Time

	// OverlapStart/OverlapEnd keep appointments whose [StartTime, EndTime)
	// overlaps [OverlapStart, OverlapEnd). Both must be set together.
	OverlapStart *time.Time
	OverlapEnd   *time.Time

	ExcludeID *uuid.UUID
}

// Overlapping builds the filter the availability checker runs for one subject.
func Overlapping(start, end time.Time, excludeID *uuid.UUID) Filter {
	scheduled := StatusScheduled
	return Filter{
		Status:       &scheduled,
		OverlapStart: &start,
		OverlapEnd:   &end,
		ExcludeID:    excludeID,
	}
}
