package window

import (
	"time"

	"github.com/emberchat/ember/internal/models"
)

// DaySection groups consecutive messages sharing a calendar day, in the
// window's presentation order. The UI renders one date header per section.
type DaySection struct {
	// Day is midnight of the section's calendar day in loc.
	Day time.Time

	// Start is the presentation-order index of the section's first message.
	Start int

	Messages []models.Message
}

// Sections splits msgs (already in presentation order) into day sections.
// Messages are grouped by their local calendar day in loc; a nil loc means
// time.Local.
func Sections(msgs []models.Message, loc *time.Location) []DaySection {
	if len(msgs) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var sections []DaySection
	for i := range msgs {
		day := startOfDay(msgs[i].Date, loc)
		if len(sections) == 0 || !sections[len(sections)-1].Day.Equal(day) {
			sections = append(sections, DaySection{Day: day, Start: i})
		}
		last := &sections[len(sections)-1]
		last.Messages = append(last.Messages, msgs[i])
	}
	return sections
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
