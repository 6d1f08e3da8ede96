package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LENAX/wengine/pkg/core/engine"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/page"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/LENAX/wengine/pkg/index"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
wengine:
  general:
    log_level: error
  storage:
    database:
      type: sqlite
      dsn: %s
  runner:
    type: %s
    local:
      pool_size: 2
      shutdown_grace: 5s
  scheduler:
    jobs:
      - name: ping
        cron: "@hourly"
        model_id: etl
        body: noop
        config:
          Product: ["p1"]
`

func writeConfig(t *testing.T, runnerType string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wengine.yaml")
	content := fmt.Sprintf(testConfig, filepath.Join(dir, "wengine.db"), runnerType)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_RunThenBrowse(t *testing.T) {
	cfg := writeConfig(t, "local")

	out, err := runCLI(t, "run", "--config", cfg, "--duration", "200ms", "--trigger-now")
	require.NoError(t, err)
	assert.Contains(t, out, "已启动 local 运行器，定时任务 1 个")

	out, err = runCLI(t, "index", "size", "--config", cfg, "ModelId == etl")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = runCLI(t, "instance", "page", "--config", cfg, "--json", "--category", "DONE", "--order", "CreationDate")
	require.NoError(t, err)
	var result page.QueryPage
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 1, result.NumOfHits)
	stub := result.Items[0]
	assert.Equal(t, "ping", stub.TaskName)
	assert.True(t, stub.State.Is(instance.ExecutionComplete))

	out, err = runCLI(t, "instance", "page", "--config", cfg, "--met", "Product=p1,p2", "--show-message")
	require.NoError(t, err)
	assert.Contains(t, out, stub.InstanceID)
	assert.Contains(t, out, "第 1/1 页，共 1 条记录")

	out, err = runCLI(t, "instance", "get", "--config", cfg, stub.InstanceID)
	require.NoError(t, err)
	assert.Contains(t, out, "Task:     ping (noop)")
	assert.Contains(t, out, "Product")

	out, err = runCLI(t, "index", "buckets", "--config", cfg, stub.InstanceID)
	require.NoError(t, err)
	assert.Contains(t, out, "TaskBody")

	out, err = runCLI(t, "index", "query", "--config", cfg, "--json", "State == ExecutionComplete")
	require.NoError(t, err)
	var receipts []index.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipts))
	require.Len(t, receipts, 1)
	assert.Equal(t, stub.InstanceID, receipts[0].TransactionID.String())

	_, err = runCLI(t, "index", "delete", "--config", cfg, stub.InstanceID)
	require.NoError(t, err)
	out, err = runCLI(t, "index", "size", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestCLI_RunRemote(t *testing.T) {
	cfg := writeConfig(t, "remote")

	out, err := runCLI(t, "run", "--config", cfg, "--duration", "200ms", "--trigger-now")
	require.NoError(t, err)
	assert.Contains(t, out, "已启动 remote 运行器")

	// 远程运行器不持久化实例
	out, err = runCLI(t, "index", "size", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestWorkerQueues(t *testing.T) {
	jobs := []engine.JobDefinition{
		{Name: "a", Config: task.Config{runner.ConfigQueueName: {"gpu"}}},
		{Name: "b"},
		{Name: "c", Config: task.Config{runner.ConfigQueueName: {"heavy"}}},
		{Name: "d", Config: task.Config{runner.ConfigQueueName: {"gpu"}}},
		{Name: "e", Config: task.Config{runner.ConfigQueueName: {"batch"}}},
	}
	assert.Equal(t, []string{"batch", "gpu", "heavy"}, workerQueues("batch", jobs))
	assert.Equal(t, []string{runner.DefaultQueueName}, workerQueues("", nil))
}

func TestCLI_QuerySQL(t *testing.T) {
	cfg := writeConfig(t, "local")
	out, err := runCLI(t, "index", "query", "--config", cfg, "--sql", "State == Executing")
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT instance_id FROM workflow_instance_metadata WHERE met_key = 'State' AND (met_val = 'Executing')\n",
		out)
}

func TestCLI_InvalidArguments(t *testing.T) {
	cfg := writeConfig(t, "local")

	_, err := runCLI(t, "index", "query", "--config", cfg, "State ==")
	assert.Error(t, err)

	_, err = runCLI(t, "instance", "page", "--config", cfg, "--page-size", "0")
	assert.ErrorIs(t, err, page.ErrInvalidPageInfo)

	_, err = runCLI(t, "instance", "page", "--config", cfg, "--order", "Priority")
	assert.Error(t, err)

	_, err = runCLI(t, "instance", "page", "--config", cfg, "--met", "novalue")
	assert.Error(t, err)

	_, err = runCLI(t, "instance", "page", "--config", cfg, "--category", "SOMETIMES")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])

	out, err = runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "wengine\n"))
}
