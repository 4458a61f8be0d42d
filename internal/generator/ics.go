package generator

import (
	"context"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

func registerICS(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"description", "payload appended to the event description"},
		{"location", "payload as the event location"},
		{"alarm", "display alarm whose description is the payload"},
		{"x_property", "custom X-MEETING-NOTES property"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return icsDoc(tech, in)
		}
		if err := r.Register(model.FormatICS, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

func icsDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)
	ts := in.Timestamp.UTC()
	start := time.Date(ts.Year(), ts.Month(), ts.Day(), 15, 0, 0, 0, time.UTC).AddDate(0, 0, 7)

	cal := ics.NewCalendarFor(d.Company)
	cal.SetMethod(ics.MethodPublish)

	ev := cal.AddEvent(in.Token + "@" + d.Domain)
	ev.SetDtStampTime(ts)
	ev.SetCreatedTime(ts)
	ev.SetStartAt(start)
	ev.SetEndAt(start.Add(time.Hour))
	ev.SetSummary(d.Meeting)
	ev.SetOrganizer("finance@" + d.Domain)

	desc := "Agenda: review " + d.Quarter + " figures with " + d.Person + ". Bring the expense summary."
	if tech == "description" {
		desc += "\n\n" + in.Payload
	}
	ev.SetDescription(desc)

	if tech == "location" {
		ev.SetLocation(in.Payload)
	} else {
		ev.SetLocation(d.Location)
	}

	switch tech {
	case "alarm":
		a := ev.AddAlarm()
		a.SetAction(ics.ActionDisplay)
		a.SetTrigger("-PT15M")
		a.SetProperty(ics.ComponentPropertyDescription, in.Payload)
	case "x_property":
		ev.SetProperty(ics.ComponentProperty("X-MEETING-NOTES"), in.Payload)
	}

	return &technique.Artifact{Data: []byte(cal.Serialize()), Ext: ".ics", MediaType: "text/calendar; charset=utf-8"}, nil
}
