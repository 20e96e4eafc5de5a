/*
Package directory provides a file-backed implementation of the engine's
external collaborators: users, the org hierarchy and public holidays.

PURPOSE:
  The engine only reads these; in production they are owned by HR/identity
  systems. Directory loads a YAML snapshot of them so the server can run
  standalone and tests can describe an organization declaratively.

YAML SCHEMA:
  users:
    - id: alice
      country: KR
      manager: bob            # empty = top of the hierarchy
      work_hours:             # optional, default 09:00-18:00
        start: "08:30"
        end: "17:30"
  holidays:
    "":                       # applies to every country
      - {date: "2025-01-01", name: "New Year", recurring: true}
    KR:
      - {date: "2025-03-01", name: "Independence Movement Day", recurring: true}
      - {date: "2025-05-06", name: "Substitute holiday"}

HIERARCHY:
  CandidateApprovers walks the manager chain upwards. Level 1 is the direct
  manager, level 2 the manager's manager, and so on. A cycle is a data error.

SEE ALSO:
  - vacation/external.go: UserDirectory, OrgHierarchyResolver
  - generic/time.go: HolidayCalendar
*/
package directory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// FILE SCHEMA
// =============================================================================

type fileYAML struct {
	Users    []userYAML               `yaml:"users"`
	Holidays map[string][]holidayYAML `yaml:"holidays"`
}

type userYAML struct {
	ID        string         `yaml:"id"`
	Country   string         `yaml:"country"`
	Manager   string         `yaml:"manager"`
	WorkHours *workHoursYAML `yaml:"work_hours"`
}

type workHoursYAML struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type holidayYAML struct {
	Date      string `yaml:"date"`
	Name      string `yaml:"name"`
	Recurring bool   `yaml:"recurring"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Holiday is one dated or yearly-recurring public holiday.
type Holiday struct {
	Date      time.Time
	Name      string
	Recurring bool // same month/day every year
}

// Directory is an immutable in-memory snapshot; safe for concurrent use.
type Directory struct {
	users    map[vacation.UserID]vacation.User
	managers map[vacation.UserID]vacation.UserID
	holidays map[string][]Holiday
}

var (
	_ vacation.UserDirectory        = (*Directory)(nil)
	_ vacation.OrgHierarchyResolver = (*Directory)(nil)
	_ generic.HolidayCalendar       = (*Directory)(nil)
)

// Empty returns a directory without users or holidays.
func Empty() *Directory {
	return &Directory{
		users:    make(map[vacation.UserID]vacation.User),
		managers: make(map[vacation.UserID]vacation.UserID),
		holidays: make(map[string][]Holiday),
	}
}

// Load reads a YAML directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Directory from YAML and validates it: unique ids, known
// managers, parseable dates and clock times, and no management cycles.
func Parse(data []byte) (*Directory, error) {
	var f fileYAML
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory YAML: %w", err)
	}

	d := Empty()
	for i, u := range f.Users {
		id := vacation.UserID(strings.TrimSpace(u.ID))
		if id == "" {
			return nil, generic.Invalid(fmt.Sprintf("users[%d].id", i), "must not be blank")
		}
		if _, dup := d.users[id]; dup {
			return nil, generic.Invalid(fmt.Sprintf("users[%d].id", i), "duplicate user %q", id)
		}
		hours := generic.StandardWorkHours
		if u.WorkHours != nil {
			var err error
			if hours, err = parseWorkHours(*u.WorkHours); err != nil {
				return nil, generic.Invalid(fmt.Sprintf("users[%d].work_hours", i), "%v", err)
			}
		}
		d.users[id] = vacation.User{ID: id, CountryCode: u.Country, WorkHours: hours}
		if m := strings.TrimSpace(u.Manager); m != "" {
			d.managers[id] = vacation.UserID(m)
		}
	}

	for id, m := range d.managers {
		if _, ok := d.users[m]; !ok {
			return nil, generic.Invalid("users.manager", "user %q reports to unknown manager %q", id, m)
		}
		if _, err := d.chain(id); err != nil {
			return nil, err
		}
	}

	for country, list := range f.Holidays {
		for i, h := range list {
			date, err := generic.ParseDate(h.Date)
			if err != nil {
				return nil, generic.Invalid(fmt.Sprintf("holidays.%s[%d].date", country, i), "%v", err)
			}
			d.holidays[country] = append(d.holidays[country], Holiday{Date: date, Name: h.Name, Recurring: h.Recurring})
		}
	}
	return d, nil
}

func parseWorkHours(w workHoursYAML) (generic.WorkHours, error) {
	start, err := generic.ParseClock(w.Start)
	if err != nil {
		return generic.WorkHours{}, err
	}
	end, err := generic.ParseClock(w.End)
	if err != nil {
		return generic.WorkHours{}, err
	}
	if !start.Before(end) {
		return generic.WorkHours{}, fmt.Errorf("start %s must be before end %s", start, end)
	}
	return generic.WorkHours{Start: start, End: end}, nil
}

// Users returns every user id, unordered.
func (d *Directory) Users() []vacation.UserID {
	ids := make([]vacation.UserID, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	return ids
}

// =============================================================================
// vacation.UserDirectory
// =============================================================================

func (d *Directory) Get(_ context.Context, id vacation.UserID) (vacation.User, error) {
	u, ok := d.users[id]
	if !ok {
		return vacation.User{}, generic.NotFound("user", id)
	}
	return u, nil
}

func (d *Directory) Exists(_ context.Context, id vacation.UserID) (bool, error) {
	_, ok := d.users[id]
	return ok, nil
}

// =============================================================================
// vacation.OrgHierarchyResolver
// =============================================================================

func (d *Directory) CandidateApprovers(_ context.Context, id vacation.UserID) ([]vacation.ApproverCandidate, error) {
	if _, ok := d.users[id]; !ok {
		return nil, generic.NotFound("user", id)
	}
	return d.chain(id)
}

func (d *Directory) chain(id vacation.UserID) ([]vacation.ApproverCandidate, error) {
	var out []vacation.ApproverCandidate
	seen := map[vacation.UserID]bool{id: true}
	for cur, level := id, 1; ; level++ {
		m, ok := d.managers[cur]
		if !ok {
			return out, nil
		}
		if seen[m] {
			return nil, generic.Invalid("users.manager", "management cycle through %q", m)
		}
		seen[m] = true
		out = append(out, vacation.ApproverCandidate{ApproverID: m, Level: level})
		cur = m
	}
}

// =============================================================================
// generic.HolidayCalendar
// =============================================================================

// PublicHolidays returns global ("") plus country holidays in [from, to].
// Recurring holidays are projected onto every year of the range; a recurring
// Feb 29 only falls in leap years.
func (d *Directory) PublicHolidays(_ context.Context, countryCode string, from, to time.Time) (map[time.Time]string, error) {
	from, to = generic.DateOf(from), generic.DateOf(to)
	out := make(map[time.Time]string)

	add := func(date time.Time, name string) {
		if date.Before(from) || date.After(to) {
			return
		}
		if _, taken := out[date]; !taken {
			out[date] = name
		}
	}

	for _, key := range []string{countryCode, ""} {
		for _, h := range d.holidays[key] {
			if !h.Recurring {
				add(h.Date, h.Name)
				continue
			}
			for year := from.Year(); year <= to.Year(); year++ {
				date := generic.NewDate(year, h.Date.Month(), h.Date.Day())
				if date.Day() != h.Date.Day() {
					continue
				}
				add(date, h.Name)
			}
		}
		if countryCode == "" {
			break
		}
	}
	return out, nil
}
