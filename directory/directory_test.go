package directory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/directory"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const orgYAML = `
users:
  - id: ceo
    country: KR
  - id: vp
    country: KR
    manager: ceo
  - id: lead
    country: KR
    manager: vp
  - id: alice
    country: KR
    manager: lead
    work_hours: {start: "08:30", end: "17:30"}
  - id: bob
    country: US
    manager: lead
holidays:
  "":
    - {date: "2024-01-01", name: "New Year", recurring: true}
  KR:
    - {date: "2024-03-01", name: "Independence Movement Day", recurring: true}
    - {date: "2025-05-06", name: "Substitute holiday"}
  US:
    - {date: "2024-02-29", name: "Leap party", recurring: true}
`

func loadOrg(t *testing.T) *directory.Directory {
	t.Helper()
	d, err := directory.Parse([]byte(orgYAML))
	require.NoError(t, err)
	return d
}

func TestDirectory_CandidateApprovers(t *testing.T) {
	d := loadOrg(t)
	ctx := context.Background()

	chain, err := d.CandidateApprovers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []vacation.ApproverCandidate{
		{ApproverID: "lead", Level: 1},
		{ApproverID: "vp", Level: 2},
		{ApproverID: "ceo", Level: 3},
	}, chain)

	top, err := d.CandidateApprovers(ctx, "ceo")
	require.NoError(t, err)
	assert.Empty(t, top, "top of hierarchy has no approvers")

	_, err = d.CandidateApprovers(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestDirectory_Users(t *testing.T) {
	d := loadOrg(t)
	ctx := context.Background()

	alice, err := d.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "KR", alice.CountryCode)
	assert.Equal(t, "08:30-17:30", alice.WorkHours.String())

	bob, err := d.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, generic.StandardWorkHours, bob.WorkHours)

	ok, err := d.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, d.Users(), 5)
}

func TestDirectory_PublicHolidays(t *testing.T) {
	d := loadOrg(t)
	ctx := context.Background()

	// GIVEN: a range spanning two years
	from := generic.NewDate(2024, 12, 1)
	to := generic.NewDate(2025, 12, 31)

	// WHEN: KR holidays are requested
	kr, err := d.PublicHolidays(ctx, "KR", from, to)
	require.NoError(t, err)

	// THEN: recurring ones are projected into 2025, dated ones kept, global included
	assert.Equal(t, "New Year", kr[generic.NewDate(2025, 1, 1)])
	assert.Equal(t, "Independence Movement Day", kr[generic.NewDate(2025, 3, 1)])
	assert.Equal(t, "Substitute holiday", kr[generic.NewDate(2025, 5, 6)])
	assert.Len(t, kr, 3)

	// AND: a recurring Feb 29 is skipped outside leap years
	us, err := d.PublicHolidays(ctx, "US", generic.NewDate(2025, 1, 1), generic.NewDate(2028, 12, 31))
	require.NoError(t, err)
	_, in2028 := us[generic.NewDate(2028, 2, 29)]
	assert.True(t, in2028)
	_, mar1 := us[generic.NewDate(2025, 3, 1)]
	assert.False(t, mar1)
}

func TestDirectory_DrivesBusinessDates(t *testing.T) {
	d := loadOrg(t)
	holidays, err := d.PublicHolidays(context.Background(), "KR", generic.NewDate(2025, 5, 5), generic.NewDate(2025, 5, 9))
	require.NoError(t, err)

	dates := generic.BusinessDates(generic.NewPeriod(generic.NewDate(2025, 5, 5), generic.NewDate(2025, 5, 9)), holidays)
	assert.Len(t, dates, 4, "Mon-Fri minus the substitute holiday")
}

func TestDirectory_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"blank id", "users:\n  - id: ''\n"},
		{"duplicate id", "users:\n  - id: a\n  - id: a\n"},
		{"unknown manager", "users:\n  - id: a\n    manager: ghost\n"},
		{"cycle", "users:\n  - id: a\n    manager: b\n  - id: b\n    manager: a\n"},
		{"self manager", "users:\n  - id: a\n    manager: a\n"},
		{"bad clock", "users:\n  - id: a\n    work_hours: {start: '9am', end: '18:00'}\n"},
		{"reversed hours", "users:\n  - id: a\n    work_hours: {start: '18:00', end: '09:00'}\n"},
		{"bad date", "holidays:\n  KR:\n    - {date: '2025/01/01', name: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := directory.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	_, err := directory.Parse([]byte("users: [unclosed"))
	assert.Error(t, err)
}

func TestDirectory_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orgYAML), 0o600))

	d, err := directory.Load(path)
	require.NoError(t, err)
	assert.Len(t, d.Users(), 5)

	_, err = directory.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDirectory_WiredIntoService(t *testing.T) {
	// GIVEN: a service using the directory for every collaborator
	d := loadOrg(t)
	now := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	svc := newService(t, d, now)
	ctx := context.Background()

	p, err := svc.CreatePolicy(ctx, vacation.Policy{
		Name: "Special", VacationType: "SPECIAL", GrantMethod: vacation.GrantOnRequest,
		FixedAmount:           generic.MustParseAmount("1", generic.UnitDays),
		ApprovalRequiredCount: intPtr(2),
		EffectiveType:         vacation.EffectiveImmediate, ExpirationType: vacation.ExpireOneYear,
	})
	require.NoError(t, err)
	_, err = svc.AssignPolicy(ctx, "alice", p.ID)
	require.NoError(t, err)

	// WHEN: alice picks two approvers from her chain
	res, err := svc.RequestVacation(ctx, vacation.RequestInput{
		UserID: "alice", PolicyID: p.ID, Desc: "wedding",
		ApproverIDs: []vacation.UserID{"vp", "lead"},
	})
	require.NoError(t, err)

	// THEN: the chain is ordered by hierarchy level
	require.Len(t, res.Approvals, 2)
	assert.Equal(t, vacation.UserID("lead"), res.Approvals[0].ApproverID)
	assert.Equal(t, vacation.UserID("vp"), res.Approvals[1].ApproverID)

	// AND: unknown users are rejected by the directory
	_, err = svc.RequestVacation(ctx, vacation.RequestInput{UserID: "ghost", PolicyID: p.ID, Desc: "x"})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
