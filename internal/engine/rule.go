package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tidemark/cadence/internal/store"
)

// ErrInvalidRule marks a recurrence rule that determines no recurring
// unit. Templates carrying one are rejected at creation and never reach
// the planner.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Safety cap so a malformed high-frequency rule cannot flood a group.
const maxOccurrencesPerGroup = 1000

// parseRule parses an RFC 5545 RRULE string ("FREQ=WEEKLY;BYDAY=MO,WE").
func parseRule(raw string) (*rrule.ROption, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}
	up := strings.ToUpper(raw)
	if !strings.Contains(up, "FREQ=") && !strings.Contains(up, "BYDAY=") {
		return nil, fmt.Errorf("%w: no frequency or weekday set", ErrInvalidRule)
	}
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if opt.Interval < 0 {
		return nil, fmt.Errorf("%w: negative interval", ErrInvalidRule)
	}
	return opt, nil
}

// ValidateRule reports whether raw is an acceptable recurrence rule.
// Returns an error wrapping ErrInvalidRule when it is not.
func ValidateRule(raw string) error {
	_, err := parseRule(raw)
	return err
}

// Occurrences expands a template's rule into concrete start times in
// [from, to], anchored at the template's own date and start time.
func Occurrences(tpl store.Entry, loc *time.Location, from, to time.Time) ([]time.Time, error) {
	opt, err := parseRule(tpl.RRule)
	if err != nil {
		return nil, err
	}

	anchor, _ := tpl.StartAt(loc)
	if anchor.IsZero() {
		return nil, fmt.Errorf("%w: template %s has no anchor date", ErrInvalidRule, tpl.ID)
	}
	opt.Dtstart = anchor

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	times := r.Between(from, to, true)
	if len(times) > maxOccurrencesPerGroup {
		log.Printf("recur: group %s truncated at %d occurrences", tpl.GroupID, maxOccurrencesPerGroup)
		times = times[:maxOccurrencesPerGroup]
	}
	return times, nil
}
