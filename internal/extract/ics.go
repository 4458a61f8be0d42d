package extract

import (
	"bytes"
	"strings"

	ics "github.com/arran4/golang-ical"
)

func extractICS(r *report, data []byte) error {
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return err
	}

	var summaries, descriptions, locations, alarms, custom []string
	for _, ev := range cal.Events() {
		for _, p := range ev.Properties {
			switch {
			case p.IANAToken == string(ics.ComponentPropertySummary):
				summaries = append(summaries, p.Value)
			case p.IANAToken == string(ics.ComponentPropertyDescription):
				descriptions = append(descriptions, p.Value)
			case p.IANAToken == string(ics.ComponentPropertyLocation):
				locations = append(locations, p.Value)
			case strings.HasPrefix(p.IANAToken, "X-"):
				custom = append(custom, p.IANAToken+": "+p.Value)
			}
		}
		for _, a := range ev.Alarms() {
			if p := a.GetProperty(ics.ComponentPropertyDescription); p != nil {
				alarms = append(alarms, p.Value)
			}
		}
	}

	r.section("Event Summaries", summaries...)
	r.section("Event Descriptions", descriptions...)
	r.section("Event Locations", locations...)
	r.section("Alarm Descriptions", alarms...)
	r.section("Custom X-Properties", custom...)
	return nil
}
