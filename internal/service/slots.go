package service

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/interval"
)

// Working-hours policy. It is clinic-wide, not per doctor.
const (
	DayStartHour   = 9
	WeekdayEndHour = 17
	WeekendEndHour = 14
	SlotDuration   = 60 * time.Minute
	maxSlotsPerDay = int((WeekdayEndHour - DayStartHour) * time.Hour / SlotDuration)
)

type Slot struct {
	Time      time.Time `json:"time"`
	Available bool      `json:"available"`
}

// SlotGenerator lays the fixed slot grid over one calendar day in loc.
type SlotGenerator struct {
	loc *time.Location
}

func NewSlotGenerator(loc *time.Location) SlotGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return SlotGenerator{loc: loc}
}

// WorkingDay returns the bounds of date's working day. Only the calendar date
// of date (as seen in the generator's zone) is used.
func (g SlotGenerator) WorkingDay(date time.Time) (start, end time.Time) {
	y, m, d := date.In(g.loc).Date()
	start = time.Date(y, m, d, DayStartHour, 0, 0, 0, g.loc)

	endHour := WeekdayEndHour
	if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
		endHour = WeekendEndHour
	}
	end = time.Date(y, m, d, endHour, 0, 0, 0, g.loc)
	return start, end
}

// Generate returns the day's slots in ascending order. A slot is unavailable
// when a scheduled appointment is already running at the slot's start
// instant; an appointment that only begins partway through a slot leaves it
// available. Returned instants are UTC.
func (g SlotGenerator) Generate(date time.Time, booked []*appointment.Appointment) []Slot {
	dayStart, dayEnd := g.WorkingDay(date)

	slots := make([]Slot, 0, maxSlotsPerDay)
	for t := dayStart; t.Before(dayEnd); t = t.Add(SlotDuration) {
		slots = append(slots, Slot{
			Time:      t.UTC(),
			Available: !coveredAt(booked, t),
		})
	}
	return slots
}

func coveredAt(booked []*appointment.Appointment, t time.Time) bool {
	for _, a := range booked {
		if a.IsActive() && interval.Contains(a.StartTime, a.EndTime, t) {
			return true
		}
	}
	return false
}
