package hours

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	hourLayout = "2006-01-02 15"
)

var location *time.Location

func init() {
	var err error
	location, err = time.LoadLocation("Europe/Stockholm")
	if err != nil {
		panic(fmt.Sprintf("failed to load Stockholm location: %v", err))
	}
}

// SetTimezone changes the local zone used to bucket timestamps into days and hours.
func SetTimezone(timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %v", timezone, err)
	}
	location = loc
	return nil
}

func Location() *time.Location {
	return location
}

// DateHour identifies one hour of one local calendar day.
type DateHour struct {
	Date string
	Hour uint8
}

func (dh DateHour) String() string {
	return fmt.Sprintf("%s %02d", dh.Date, dh.Hour)
}

// Time returns the start of the hour in the local zone. On the day clocks
// are turned back the first of the two hours is returned.
func (dh DateHour) Time() time.Time {
	t, err := time.ParseInLocation(hourLayout, dh.String(), location)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (dh DateHour) Add(hours int) DateHour {
	t := dh.Time()
	if t.IsZero() {
		return dh
	}
	return FromTime(t.Add(time.Duration(hours) * time.Hour))
}

func (dh DateHour) Sub(hours int) DateHour {
	return dh.Add(-hours)
}

func (dh DateHour) Compare(other DateHour) int {
	if dh == other {
		return 0
	}
	if dh.Date < other.Date {
		return -1
	}
	if dh.Date > other.Date {
		return 1
	}
	if dh.Hour < other.Hour {
		return -1
	}
	return 1
}

func (dh DateHour) IsZero() bool {
	return dh.Date == "" && dh.Hour == 0
}

func FromTime(t time.Time) DateHour {
	if t.IsZero() {
		return DateHour{}
	}
	t = t.In(location)
	return DateHour{
		Date: t.Format(dateLayout),
		Hour: uint8(t.Hour()),
	}
}

// StartOfDay returns local midnight of the day t falls on.
func StartOfDay(t time.Time) time.Time {
	t = t.In(location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, location)
}

func FromIso(str string) time.Time {
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}
	}
	return t.In(location)
}
