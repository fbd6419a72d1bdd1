package messages

import (
	"strings"
	"time"

	"github.com/napoleonai/inbox/internal/models"
)

// Criterion is one entry of the filter set.
type Criterion string

const (
	CriterionAll          Criterion = "all"
	CriterionVip          Criterion = "vip"
	CriterionHighPriority Criterion = "high-priority"
	CriterionUnread       Criterion = "unread"
	CriterionToday        Criterion = "today"
)

// ParseCriteria parses the comma-separated filters query parameter.
// Unknown entries are ignored.
func ParseCriteria(csv string) []Criterion {
	var criteria []Criterion
	for _, part := range strings.Split(csv, ",") {
		switch c := Criterion(strings.TrimSpace(part)); c {
		case CriterionAll, CriterionVip, CriterionHighPriority, CriterionUnread, CriterionToday:
			criteria = append(criteria, c)
		}
	}
	return criteria
}

// ApplyCriteria filters messages by the criterion set. Criteria
// compose with logical AND, except that "all" short-circuits to the
// full input set regardless of other entries. "today" means created
// at or after local midnight of now.
func ApplyCriteria(msgs []models.Message, criteria []Criterion, now time.Time) []models.Message {
	if len(criteria) == 0 {
		return msgs
	}
	for _, c := range criteria {
		if c == CriterionAll {
			return msgs
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	filtered := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if matchesAll(m, criteria, midnight) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func matchesAll(m models.Message, criteria []Criterion, midnight time.Time) bool {
	for _, c := range criteria {
		switch c {
		case CriterionVip:
			if !m.IsVip {
				return false
			}
		case CriterionHighPriority:
			if m.Priority != models.PriorityHigh {
				return false
			}
		case CriterionUnread:
			if m.IsRead {
				return false
			}
		case CriterionToday:
			if m.CreatedAt.Before(midnight) {
				return false
			}
		}
	}
	return true
}
