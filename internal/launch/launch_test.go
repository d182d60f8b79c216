package launch

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/continuity/internal/health"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sh(script string) Descriptor {
	return Descriptor{Command: "sh", Args: []string{"-c", script}}
}

// #region deploy-tests

func TestDeployAll_Statuses(t *testing.T) {
	c := NewCoordinator(Options{Timeout: 5 * time.Second})
	results := c.DeployAll(context.Background(), map[string]Descriptor{
		"ok":      sh("echo hello"),
		"fails":   sh("echo broken >&2; exit 3"),
		"missing": {Command: "definitely-not-a-real-binary-xyz"},
		"empty":   {},
	}, nil)

	require.Len(t, results, 4)

	assert.Equal(t, StatusSuccess, results["ok"].Status)
	assert.Equal(t, "hello\n", results["ok"].Output)

	assert.Equal(t, StatusFailed, results["fails"].Status)
	assert.Equal(t, "broken", results["fails"].Error)

	assert.Equal(t, StatusError, results["missing"].Status)
	assert.NotEmpty(t, results["missing"].Error)

	assert.Equal(t, StatusError, results["empty"].Status)

	for name, r := range results {
		assert.Equal(t, name, r.Name)
		assert.False(t, r.Timestamp.IsZero(), name)
		assert.False(t, r.Timestamp.Before(r.StartedAt), name)
	}
}

func TestDeployAll_EnvOverrides(t *testing.T) {
	d := sh(`printf %s "$CONTINUITY_TEST_VALUE"`)
	d.Env = map[string]string{"CONTINUITY_TEST_VALUE": "bar"}

	results := NewCoordinator(Options{}).DeployAll(context.Background(), map[string]Descriptor{"env": d}, nil)
	assert.Equal(t, StatusSuccess, results["env"].Status)
	assert.Equal(t, "bar", results["env"].Output)
}

func TestDeployAll_TimeoutDoesNotHang(t *testing.T) {
	c := NewCoordinator(Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	results := c.DeployAll(context.Background(), map[string]Descriptor{
		"hung": {Command: "sleep", Args: []string{"30"}},
	}, nil)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, StatusError, results["hung"].Status)
	assert.Contains(t, results["hung"].Error, "timed out")
}

func TestDeployAll_PriorityPrecedesRemainder(t *testing.T) {
	descs := map[string]Descriptor{
		"a": sh("sleep 0.02"),
		"b": sh("sleep 0.02"),
		"c": sh("true"),
		"d": sh("true"),
	}
	c := NewCoordinator(Options{Parallelism: 4})
	results := c.DeployAll(context.Background(), descs, []string{"a", "b", "ghost"})

	require.Len(t, results, 4)
	assert.NotContains(t, results, "ghost")

	a, b := results["a"], results["b"]
	assert.False(t, b.StartedAt.Before(a.Timestamp), "priority launches run one at a time")
	for _, name := range []string{"c", "d"} {
		assert.True(t, a.Timestamp.Before(results[name].StartedAt), name)
		assert.True(t, b.Timestamp.Before(results[name].StartedAt), name)
	}
	assert.True(t, PriorityReady(results, []string{"a", "b"}))
}

func TestDeployAll_FailureIsolated(t *testing.T) {
	descs := map[string]Descriptor{
		"first":  sh("exit 1"),
		"second": sh("true"),
		"third":  sh("true"),
	}
	results := NewCoordinator(Options{}).DeployAll(context.Background(), descs, []string{"first", "second"})

	assert.Equal(t, StatusFailed, results["first"].Status)
	assert.Equal(t, StatusSuccess, results["second"].Status)
	assert.Equal(t, StatusSuccess, results["third"].Status)
	assert.False(t, PriorityReady(results, []string{"first", "second"}))
}

func TestDeployAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := NewCoordinator(Options{}).DeployAll(ctx, map[string]Descriptor{"x": sh("true")}, nil)
	assert.Equal(t, StatusError, results["x"].Status)
}

// #endregion deploy-tests

// #region descriptor-tests

func TestLoadDescriptors(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "mcpServers": {
    "memory": {"command": "node", "args": ["memory.js", "--port", "9000"], "env": {"MODE": "prod"}},
    "search": {"command": "search-server", "health_addr": "127.0.0.1:9100"}
  }
}`), 0o644))

	descs, err := LoadDescriptors(jsonPath)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, []string{"memory.js", "--port", "9000"}, descs["memory"].Args)
	assert.Equal(t, "prod", descs["memory"].Env["MODE"])
	assert.Equal(t, "127.0.0.1:9100", descs["search"].HealthAddr)

	yamlPath := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("mcpServers:\n  tool:\n    command: tool\n    args: [\"-v\"]\n"), 0o644))
	descs, err = LoadDescriptors(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "tool", descs["tool"].Command)
}

func TestLoadDescriptors_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	_, err := LoadDescriptors(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)

	_, err = LoadDescriptors(write("empty.yaml", "mcpServers: {}\n"))
	assert.Error(t, err)

	_, err = LoadDescriptors(write("nocmd.yaml", "mcpServers:\n  x:\n    args: [a]\n"))
	assert.Error(t, err)

	_, err = LoadDescriptors(write("bad.yaml", "mcpServers: [unclosed\n"))
	assert.Error(t, err)
}

func TestEnvPairsSorted(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, envPairs(map[string]string{"B": "2", "A": "1"}))
}

// #endregion descriptor-tests

// #region validate-tests

func TestValidate(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := health.NewServer(nil)
	srv.SetServing(health.ServiceDeadline, true)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()
	defer func() {
		srv.Stop()
		<-served
	}()
	addr := lis.Addr().String()

	c := NewCoordinator(Options{ProbeTimeout: 2 * time.Second, Parallelism: 3})
	out := c.Validate(context.Background(), map[string]Descriptor{
		"up":       {Command: "x", HealthAddr: addr, HealthService: health.ServiceDeadline},
		"unknown":  {Command: "x", HealthAddr: addr, HealthService: "not.registered"},
		"no-probe": {Command: "x"},
	})

	require.Len(t, out, 3)
	assert.Equal(t, HealthOperational, out["up"].Health)
	assert.Equal(t, HealthDegraded, out["unknown"].Health)
	assert.Equal(t, health.StatusServiceUnknown, out["unknown"].Probe)
	assert.Equal(t, HealthUnchecked, out["no-probe"].Health)
}

// #endregion validate-tests
