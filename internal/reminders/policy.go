package reminders

import (
	"sort"
	"strconv"
	"strings"

	"workshops/internal/models"
)

// Identities of rules resolved from the global settings
const (
	// DefaultIdentity is used when the global settings hold a single offset.
	// Markers written before multi-offset support carry this identity.
	DefaultIdentity = "default"

	defaultSuffix = "h_default"
	hoursSuffix   = "h"
)

// Rule is one reminder obligation resolved for a workshop
type Rule struct {
	OffsetHours float64
	Identity    string
	Subject     string // Optional subject override from the workshop entry
}

// ResolveRules returns the reminder rules that apply to a workshop, longest
// lead time first. Per-workshop entries win over the global offsets.
func ResolveRules(w *models.Workshop, settings models.GlobalReminderSettings) []Rule {
	var rules []Rule

	if len(w.ReminderSettings) > 0 {
		for _, entry := range w.ReminderSettings {
			if entry.Type != "" && !strings.EqualFold(entry.Type, models.ReminderKindEmail) {
				continue
			}
			rules = append(rules, Rule{
				OffsetHours: entry.HoursBefore,
				Identity:    formatHours(entry.HoursBefore) + hoursSuffix,
				Subject:     entry.Subject,
			})
		}
	} else if len(settings.Offsets) == 1 && !settings.MultiOffset {
		rules = append(rules, Rule{
			OffsetHours: settings.Offsets[0],
			Identity:    DefaultIdentity,
		})
	} else {
		for _, h := range settings.Offsets {
			rules = append(rules, Rule{
				OffsetHours: h,
				Identity:    formatHours(h) + defaultSuffix,
			})
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].OffsetHours > rules[j].OffsetHours
	})
	return rules
}

// formatHours renders an offset the shortest way: 24 -> "24", 1.5 -> "1.5".
func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
