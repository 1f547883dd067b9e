package doctor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// Doctor is the directory entry an appointment's DoctorID refers to. Working
// hours are a clinic-wide policy and are not stored per doctor.
type Doctor struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`

	FirstName     string `gorm:"column:first_name;type:varchar(100);not null" json:"first_name"`
	LastName      string `gorm:"column:last_name;type:varchar(100);not null" json:"last_name"`
	Specialty     string `gorm:"column:specialty;type:varchar(100)" json:"specialty"`
	LicenseNumber string `gorm:"column:license_number;type:varchar(50);uniqueIndex" json:"license_number"`
}

func (Doctor) TableName() string {
	return "clinical.doctors"
}

func (d *Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

type Directory interface {
	// GetByID returns ErrDoctorNotFound if the doctor does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// List returns every doctor ordered by last name, first name.
	List(ctx context.Context) ([]*Doctor, error)
}
