package generator

import (
	"fmt"
	"math/rand"
	"time"
)

// decoy is the innocuous cover content around a hidden payload. It is
// derived from the request seed only, so equal seeds give equal documents.
type decoy struct {
	Company  string
	Domain   string
	Person   string
	Role     string
	Quarter  string
	Title    string
	Subject  string
	Summary  []string
	Items    []lineItem
	Total    string
	Meeting  string
	Location string
}

type lineItem struct {
	Desc   string
	Amount string
	cents  int
}

var (
	companies = []struct{ name, domain string }{
		{"Northwind Traders", "northwind.example"},
		{"Contoso Logistics", "contoso.example"},
		{"Fabrikam Industries", "fabrikam.example"},
		{"Tailspin Outfitters", "tailspin.example"},
		{"Wingtip Analytics", "wingtip.example"},
	}
	people = []struct{ name, role string }{
		{"Dana Whitfield", "Finance Director"},
		{"Marcus Oyelaran", "Controller"},
		{"Priya Raman", "Head of Operations"},
		{"Jonas Keller", "Procurement Lead"},
	}
	itemNames = []string{
		"Printer paper, 10 reams", "Toner cartridge", "Desk chair", "Monitor arm",
		"USB-C dock", "Whiteboard markers", "Conference phone", "Label printer",
		"Filing cabinet", "Ergonomic keyboard", "Cable organizer", "Paper shredder",
	}
	summaries = [][]string{
		{
			"Revenue grew 8 percent over the prior quarter, driven by renewals.",
			"Operating costs held flat as hiring slowed in the second month.",
			"Cash on hand remains sufficient for the planned warehouse expansion.",
		},
		{
			"Gross margin improved to 41 percent after the supplier consolidation.",
			"Travel spend fell sharply following the new approval workflow.",
			"The board approved the revised capital budget on the last review.",
		},
		{
			"Subscription income now accounts for most recurring revenue.",
			"Two large customer contracts moved into the next fiscal year.",
			"Headcount is expected to remain stable through the next quarter.",
		},
	}
	meetings  = []string{"Quarterly budget review", "Vendor onboarding sync", "Planning offsite prep", "Audit readiness check-in"}
	locations = []string{"Conference Room 4B", "Building 2, Room 210", "Main boardroom", "Video call"}
)

func newDecoy(seed int64, ts time.Time) decoy {
	rng := rand.New(rand.NewSource(seed))
	co := companies[rng.Intn(len(companies))]
	p := people[rng.Intn(len(people))]

	q := (int(ts.Month())-1)/3 + 1
	d := decoy{
		Company:  co.name,
		Domain:   co.domain,
		Person:   p.name,
		Role:     p.role,
		Quarter:  fmt.Sprintf("Q%d %d", q, ts.Year()),
		Summary:  summaries[rng.Intn(len(summaries))],
		Meeting:  meetings[rng.Intn(len(meetings))],
		Location: locations[rng.Intn(len(locations))],
	}
	d.Title = "Quarterly Financial Report - " + d.Quarter
	d.Subject = d.Company + " " + d.Quarter + " figures for review"

	total := 0
	perm := rng.Perm(len(itemNames))
	for _, idx := range perm[:4+rng.Intn(3)] {
		cents := 500 + rng.Intn(40000)
		total += cents
		d.Items = append(d.Items, lineItem{Desc: itemNames[idx], Amount: money(cents), cents: cents})
	}
	d.Total = money(total)
	return d
}

func money(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
