package sla

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// Targets holds the deadlines computed for one tracking record.
type Targets struct {
	FirstResponse time.Time
	Resolution    time.Time
}

// ComputeTargets adds the policy budgets to from. Without business hours the
// budgets are wall-clock minutes; with them, only working time counts.
func ComputeTargets(policy *domain.SLAPolicy, from time.Time) (Targets, error) {
	firstResponse := time.Duration(policy.FirstResponseMinutes) * time.Minute
	resolution := time.Duration(policy.ResolutionMinutes) * time.Minute

	if policy.BusinessHours == nil {
		return Targets{
			FirstResponse: from.Add(firstResponse),
			Resolution:    from.Add(resolution),
		}, nil
	}

	calendar, loc, err := businessCalendar(*policy.BusinessHours)
	if err != nil {
		return Targets{}, err
	}
	local := from.In(loc)
	return Targets{
		FirstResponse: calendar.AddWorkHours(local, firstResponse).In(from.Location()),
		Resolution:    calendar.AddWorkHours(local, resolution).In(from.Location()),
	}, nil
}

func businessCalendar(hours domain.BusinessHours) (*cal.BusinessCalendar, *time.Location, error) {
	if hours.StartHour < 0 || hours.EndHour > 24 || hours.StartHour >= hours.EndHour {
		return nil, nil, fmt.Errorf("invalid business hours %d-%d", hours.StartHour, hours.EndHour)
	}

	loc := time.UTC
	if hours.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(hours.Timezone); err != nil {
			return nil, nil, fmt.Errorf("business hours timezone: %w", err)
		}
	}

	c := cal.NewBusinessCalendar()
	c.SetWorkHours(time.Duration(hours.StartHour)*time.Hour, time.Duration(hours.EndHour)*time.Hour)
	if len(hours.Weekdays) > 0 {
		working := make(map[time.Weekday]bool, len(hours.Weekdays))
		for _, day := range hours.Weekdays {
			if day < time.Sunday || day > time.Saturday {
				return nil, nil, fmt.Errorf("invalid business weekday %d", day)
			}
			working[day] = true
		}
		for day := time.Sunday; day <= time.Saturday; day++ {
			c.SetWorkday(day, working[day])
		}
	}
	return c, loc, nil
}

// ValidateBusinessHours reports whether hours can build a calendar. nil is valid.
func ValidateBusinessHours(hours *domain.BusinessHours) error {
	if hours == nil {
		return nil
	}
	_, _, err := businessCalendar(*hours)
	return err
}
