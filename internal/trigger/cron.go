package trigger

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/waypoint/pkg/schema"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextCron returns the first fire time of a five-field cron expression (or a
// descriptor such as @hourly) strictly after from.
func NextCron(expression string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q: %s", expression, err.Error()).WithCause(err)
	}
	return schedule.Next(from).UTC(), nil
}
