package clients

type entry struct {
	email string
	opts  []Option
}

// Fixture is a named, predefined set of clients.
type Fixture struct {
	name    string
	entries []entry
}

// Name returns the fixture name.
func (f Fixture) Name() string { return f.name }

// Len returns the number of clients in the fixture.
func (f Fixture) Len() int { return len(f.entries) }

var (
	// FixtureDueSoon has one client due tomorrow, one due today and one
	// due next month.
	FixtureDueSoon = Fixture{
		name: "due-soon",
		entries: []entry{
			{email: "jan@example.com", opts: []Option{DueIn(1), WithCompany("PZU"), WithPrice(1200)}},
			{email: "ola@example.com", opts: []Option{DueIn(0), WithCompany("Warta"), WithPrice(900)}},
			{email: "ewa@example.com", opts: []Option{DueIn(30), WithCompany("Allianz"), WithPrice(800)}},
		},
	}

	// FixtureOverdue has clients one, three and ten days late plus one
	// with an unreadable payment date.
	FixtureOverdue = Fixture{
		name: "overdue",
		entries: []entry{
			{email: "late1@example.com", opts: []Option{DueIn(-1)}},
			{email: "late3@example.com", opts: []Option{DueIn(-3)}},
			{email: "late10@example.com", opts: []Option{DueIn(-10)}},
			{email: "unknown@example.com", opts: []Option{WithNextPayment("someday")}},
		},
	}
)
