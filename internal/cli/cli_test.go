package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/apiclient"
	"github.com/kacharaalert/internal/repository"
)

func demoEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"KACHARA_API_URL", "KACHARA_CONFIG", "KACHARA_EMAIL", "KACHARA_PASSWORD", "DEMO_SESSION_STORE", "AVATAR_STORE"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestDemoModeSignsInAsResident(t *testing.T) {
	demoEnv(t)
	out, err := run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, repository.SeedResidentEmail)
	assert.Contains(t, out, "Resident")

	out, err = run(t, "", "contacts")
	require.NoError(t, err)
	assert.Contains(t, out, "Bikash Driver")
	assert.NotContains(t, out, "Ram Thapa")
}

func TestExplicitAccountAndPasswordPrompt(t *testing.T) {
	demoEnv(t)
	out, err := run(t, repository.DemoPassword+"\n", "--email", repository.SeedDriverEmail, "users")
	require.NoError(t, err)
	assert.Contains(t, out, "Sita Sharma")
	assert.Contains(t, out, "Ram Thapa")

	_, err = run(t, "", "--email", repository.SeedDriverEmail, "--password", "nope", "whoami")
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
}

func TestResidentCannotListUsers(t *testing.T) {
	demoEnv(t)
	_, err := run(t, "", "users")
	require.Error(t, err)
	assert.True(t, apiclient.IsForbidden(err))
}

func TestInvoicesAndRating(t *testing.T) {
	demoEnv(t)
	out, err := run(t, "", "invoices")
	require.NoError(t, err)
	assert.Contains(t, out, "Overdue")
	assert.Contains(t, out, "NPR 525.00")

	_, err = run(t, "", "pay", "whatever", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")

	_, err = run(t, "", "pay", "--", "whatever", "-5")
	require.ErrorIs(t, err, apiclient.ErrInvalidAmount)

	out, err = run(t, "", "rate", "5", "always", "on", "time")
	require.NoError(t, err)
	assert.Contains(t, out, "Average is now 5.0 from 1 ratings")
}

func TestChatSendsAndQuits(t *testing.T) {
	demoEnv(t)
	out, err := run(t, "/reply seed-m2\nsee you at 7\n/edit seed-m2\n/quit\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "== Bikash Driver (Admin / Driver) ==")
	assert.Contains(t, out, "Namaste! Is pickup still at 7 tomorrow?")
	assert.Contains(t, out, "Replying to #seed-m2")
	assert.Contains(t, out, `you (re Bikash Driver: "Yes, 7 AM sharp. Please keep the dry wa…"): see you at 7`)
	assert.Contains(t, out, "! only your own messages can be changed")
}
