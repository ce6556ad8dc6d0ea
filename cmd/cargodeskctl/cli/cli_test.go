package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cargodesk/cargodesk/internal/compliance"
	"github.com/cargodesk/cargodesk/internal/rbac"
	"github.com/cargodesk/cargodesk/internal/support"
)

type stubAuthorizer struct {
	grants map[int64][]string
	err    error
}

func (s stubAuthorizer) Resolve(ctx context.Context, principalID int64) (rbac.PermissionSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	var grants []rbac.Grant
	for _, name := range s.grants[principalID] {
		g, err := rbac.ParsePermission(name)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return rbac.NewPermissionSet(grants), nil
}

type stubTickets struct {
	tickets []support.Ticket
	err     error
}

func (s stubTickets) FindOpenTickets(ctx context.Context) ([]support.Ticket, error) {
	return s.tickets, s.err
}

func TestPermissionsCommandJSON(t *testing.T) {
	cli, err := NewPermissionsCLI(stubAuthorizer{grants: map[int64][]string{
		9: {"support:read", "shipments:manage"},
	}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := cli.Command(context.Background(), PermissionsOptions{UserID: 9, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, code, stderr.String())

	var summary PermissionsSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, int64(9), summary.UserID)
	require.Equal(t, []string{"shipments:manage", "support:read"}, summary.Permissions)
}

func TestPermissionsCommandHuman(t *testing.T) {
	cli, err := NewPermissionsCLI(stubAuthorizer{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.Command(context.Background(), PermissionsOptions{UserID: 3, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "user 3 has no permissions")
}

func TestPermissionsCommandErrors(t *testing.T) {
	cli, err := NewPermissionsCLI(stubAuthorizer{err: rbac.ErrStorageUnavailable})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.Command(context.Background(), PermissionsOptions{UserID: 0, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--user is required")

	stderr.Reset()
	require.Equal(t, 1, cli.Command(context.Background(), PermissionsOptions{UserID: 5, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "unavailable")

	_, err = NewPermissionsCLI(nil)
	require.Error(t, err)
}

func TestSLACheckCommandReportsBreaches(t *testing.T) {
	now := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)
	assignee := int64(12)
	tickets := stubTickets{tickets: []support.Ticket{
		{ID: 1, Subject: "fresh", Status: support.StatusOpen, CreatedAt: now.Add(-5 * time.Minute), RequesterUserID: 1},
		{ID: 2, Subject: "at risk", Status: support.StatusOpen, CreatedAt: now.Add(-55 * time.Minute), AssignedToUserID: &assignee, RequesterUserID: 1},
		{ID: 3, Subject: "late", Status: support.StatusInProgress, CreatedAt: now.Add(-3 * time.Hour), RequesterUserID: 1},
	}}
	cli, err := NewComplianceCLI(tickets, compliance.DefaultThresholds(), compliance.DefaultRoutes())
	require.NoError(t, err)
	cli.clock = func() time.Time { return now }

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := cli.CheckCommand(context.Background(), SLACheckOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 10, code, stderr.String())

	var summary compliance.TickSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 3, summary.Loaded)
	require.Equal(t, 1, summary.OK)
	require.Equal(t, 1, summary.Warning)
	require.Equal(t, 1, summary.Breached)
}

func TestSLACheckCommandHumanOutput(t *testing.T) {
	cli, err := NewComplianceCLI(stubTickets{}, compliance.DefaultThresholds(), compliance.DefaultRoutes())
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.CheckCommand(context.Background(), SLACheckOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.True(t, strings.HasPrefix(stdout.String(), "open tickets: 0"))
}

func TestSLACheckCommandLoadFailure(t *testing.T) {
	cli, err := NewComplianceCLI(stubTickets{err: errors.New("relation support_tickets does not exist")}, compliance.DefaultThresholds(), compliance.DefaultRoutes())
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.CheckCommand(context.Background(), SLACheckOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "support_tickets")
}

func TestQueueCLIWithoutInspector(t *testing.T) {
	var c *QueueCLI
	_, err := c.InspectQueue(context.Background())
	require.Error(t, err)
	require.NoError(t, c.Close())

	stderr := new(bytes.Buffer)
	code := (&QueueCLI{queue: "notifications"}).Command(context.Background(), QueueOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "inspector not configured")
}
