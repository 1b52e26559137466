package pkgmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"siteinit/internal/config"
	"siteinit/internal/retrying"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario tells the helper process how to behave for the current test.
var scenario string

func mockExecCommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", name}
	cs = append(cs, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "WP_MOCK_SCENARIO=" + scenario}
	return cmd
}

// TestHelperProcess is the fake CLI subprocess.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	// args[0] is the binary name, the rest are CLI arguments.
	joined := strings.Join(args[1:], " ")

	switch os.Getenv("WP_MOCK_SCENARIO") {
	case "list":
		fmt.Print(`[{"name":"akismet","status":"active","version":"5.3","auto_update":"on"},` +
			`{"name":"hello","status":"inactive","version":"1.7","auto_update":"off"}]`)
		os.Exit(0)
	case "sites":
		fmt.Print(`[{"blog_id":"1","url":"https://example.com/","path":"/"},` +
			`{"blog_id":"4","url":"https://example.com/blog/","path":"/blog/"}]`)
		os.Exit(0)
	case "site-create":
		fmt.Println("7")
		os.Exit(0)
	case "installed":
		os.Exit(0)
	case "not-installed":
		if strings.Contains(joined, "is-installed") {
			fmt.Fprintln(os.Stderr, "Error: The site is not installed.")
			os.Exit(1)
		}
		os.Exit(0)
	case "broken":
		fmt.Fprintln(os.Stderr, "Error: something went wrong")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func testClient(t *testing.T) *Client {
	t.Helper()
	orig := execCommandContext
	execCommandContext = mockExecCommandContext
	t.Cleanup(func() { execCommandContext = orig })

	cfg := config.CLIConfig{Binary: "wp", Path: "/srv/app", Timeout: 5 * time.Second}
	return NewClient(cfg, retrying.New(1, time.Millisecond))
}

func TestListExtensions(t *testing.T) {
	c := testClient(t)
	scenario = "list"

	items, err := c.ListExtensions(context.Background(), KindPlugin, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "akismet", items[0].Name)
	assert.True(t, items[0].Active())
	assert.Equal(t, "on", items[0].AutoUpdate)
	assert.False(t, items[1].Active())
}

func TestListSites(t *testing.T) {
	c := testClient(t)
	scenario = "sites"

	sites, err := c.ListSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, int64(4), sites[1].ID)
	assert.Equal(t, "/blog/", sites[1].Path)
}

func TestCreateSiteParsesID(t *testing.T) {
	c := testClient(t)
	scenario = "site-create"

	id, err := c.CreateSite(context.Background(), "blog", "The Blog")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestIsInstalled(t *testing.T) {
	c := testClient(t)

	scenario = "installed"
	assert.True(t, c.IsInstalled(context.Background()))

	scenario = "not-installed"
	assert.False(t, c.IsInstalled(context.Background()))
}

func TestErrorsCarryOutput(t *testing.T) {
	c := testClient(t)
	scenario = "broken"

	err := c.InstallExtensions(context.Background(), KindPlugin, []string{"akismet"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something went wrong")
}
