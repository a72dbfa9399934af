package supervm

import (
	"context"
	"testing"
	"time"

	"github.com/fleetctl/supervm/pkg/healthmonitor"
	"github.com/fleetctl/supervm/pkg/nodeprovider"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	payload interface{}
}

func (f *fakeWorker) ExecuteTask(ctx context.Context, addr string, p types.Partition, deadline time.Time) (workerclient.ExecuteResult, error) {
	return workerclient.ExecuteResult{Payload: f.payload}, nil
}

func (f *fakeWorker) Health(ctx context.Context, addr string, timeout time.Duration) (float64, bool, error) {
	return 0, true, nil
}

func testConfig() Config {
	return Config{
		HealthMonitor: healthmonitor.Config{SweepInterval: time.Hour},
	}
}

func TestSubmitWithNoEligibleNodesFailsFast(t *testing.T) {
	provider := nodeprovider.NewStaticProvider(nil, func() string { return "n" })
	worker := &fakeWorker{}
	vm := New(provider, worker, testConfig())
	require.NoError(t, vm.Initialize(context.Background()))
	defer vm.Shutdown()

	_, err := vm.Submit(context.Background(), &types.Task{Kind: types.TaskKindBrowser, Browser: &types.BrowserPayload{URL: "https://x"}})
	require.Error(t, err)

	status := vm.Status()
	assert.Equal(t, int64(0), status.Performance.TotalTasks)
}

func TestSubmitRenderEndToEnd(t *testing.T) {
	provider := nodeprovider.NewStaticProvider([]nodeprovider.Descriptor{
		{ID: "n1", Address: "http://n1", Role: types.NodeRoleWorker, Capacity: types.NodeCapacity{CPUCores: 4, MemoryMB: 2048}},
	}, func() string { return "n" })

	frames := []types.RenderFrame{{FrameNumber: 1}, {FrameNumber: 2}}
	worker := &fakeWorker{payload: frames}

	vm := New(provider, worker, testConfig())
	require.NoError(t, vm.Initialize(context.Background()))
	defer vm.Shutdown()

	vm.registry.UpdateHealth("n1", 0, time.Now())

	result, err := vm.Submit(context.Background(), &types.Task{
		Kind:   types.TaskKindRender,
		Render: &types.RenderPayload{SceneFile: "/s.blend", FrameStart: 1, FrameEnd: 2},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalFrames)

	status := vm.Status()
	assert.Equal(t, int64(1), status.Performance.TotalTasks)
}

func TestScaleIsAsynchronous(t *testing.T) {
	provider := nodeprovider.NewStaticProvider(nil, func() string { return "new-node" })
	vm := New(provider, &fakeWorker{}, testConfig())
	require.NoError(t, vm.Initialize(context.Background()))
	defer vm.Shutdown()

	err := vm.Scale(context.Background(), 2, types.NodeCapacity{CPUCores: 2, MemoryMB: 1024})
	require.NoError(t, err)
}
