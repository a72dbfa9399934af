package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/supervm"
	"github.com/fleetctl/supervm/pkg/taskstore"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps a scheduler error kind to its HTTP status and
// writes the standard {error, kind} body.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.Validation:
		status = http.StatusBadRequest
	case errs.NotReady:
		status = http.StatusServiceUnavailable
	case errs.NoEligibleNodes, errs.NoCapacity, errs.WorkerError, errs.Transport, errs.Timeout, errs.ProviderError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

// requireReady short-circuits with 503 NotReady if the SuperVM hasn't
// finished Initialize yet (spec §7: "NotReady short-circuits at the API
// boundary with 503"). Callers return immediately when this reports false;
// handleHealth deliberately does not call this, since it is itself the
// endpoint operators poll to observe readiness.
func (s *Server) requireReady(w http.ResponseWriter) bool {
	if s.vm.Mode() != supervm.ModeReady {
		writeError(w, errs.New(errs.NotReady, "supervm has not completed initialization"))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"superVM":   s.vm.Status(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	status := s.vm.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status.Mode,
		"nodes":   s.vm.Registry().List(),
		"superVM": status,
	})
}

func (s *Server) handleSuperVMStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.vm.Status())
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.vm.Status().Resources)
}

func (s *Server) handlePerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.vm.Status().Performance)
}

type renderRequest struct {
	SceneFile  string                 `json:"sceneFile"`
	FrameStart int                    `json:"frameStart"`
	FrameEnd   int                    `json:"frameEnd"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "malformed request body", err))
		return
	}
	if req.SceneFile == "" {
		writeError(w, errs.New(errs.Validation, "sceneFile is required"))
		return
	}
	if req.FrameEnd < req.FrameStart {
		writeError(w, errs.New(errs.Validation, "frameEnd must be >= frameStart"))
		return
	}

	task := &types.Task{
		Kind: types.TaskKindRender,
		Render: &types.RenderPayload{
			SceneFile:  req.SceneFile,
			FrameStart: req.FrameStart,
			FrameEnd:   req.FrameEnd,
			Options:    req.Options,
		},
	}
	s.submitAndRespond(w, r, task)
}

type processRequest struct {
	InputData  []float64              `json:"inputData"`
	Operation  string                 `json:"operation"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	ChunkSize  int                    `json:"chunkSize,omitempty"`
	Exhaustive bool                   `json:"exhaustive,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "malformed request body", err))
		return
	}
	if len(req.InputData) == 0 {
		writeError(w, errs.New(errs.Validation, "inputData must not be empty"))
		return
	}

	op := types.ComputeOperation(req.Operation)
	switch op {
	case types.ComputeOpSort, types.ComputeOpFilter, types.ComputeOpMap, types.ComputeOpReduce:
	default:
		writeError(w, errs.New(errs.Validation, "operation must be one of sort, filter, map, reduce"))
		return
	}

	task := &types.Task{
		Kind: types.TaskKindCompute,
		Compute: &types.ComputePayload{
			InputData:  req.InputData,
			Operation:  op,
			Parameters: req.Parameters,
			ChunkSize:  req.ChunkSize,
			Exhaustive: req.Exhaustive,
		},
	}
	s.submitAndRespond(w, r, task)
}

type browserRequest struct {
	URL     string                 `json:"url"`
	Actions []map[string]string    `json:"actions,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

func (s *Server) handleBrowser(w http.ResponseWriter, r *http.Request) {
	var req browserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "malformed request body", err))
		return
	}
	if req.URL == "" {
		writeError(w, errs.New(errs.Validation, "url is required"))
		return
	}

	task := &types.Task{
		Kind:    types.TaskKindBrowser,
		Browser: &types.BrowserPayload{URL: req.URL, Actions: req.Actions, Options: req.Options},
	}
	s.submitAndRespond(w, r, task)
}

type syncRequest struct {
	Operation string                 `json:"operation"`
	Files     []string               `json:"files,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "malformed request body", err))
		return
	}
	if req.Operation == "" {
		writeError(w, errs.New(errs.Validation, "operation is required"))
		return
	}

	task := &types.Task{
		Kind: types.TaskKindFileSync,
		Sync: &types.SyncPayload{Operation: req.Operation, Files: req.Files, Options: req.Options},
	}
	s.submitAndRespond(w, r, task)
}

type taskOutcome struct {
	TaskID        string             `json:"taskId"`
	Success       bool               `json:"success"`
	Result        *types.TaskResult  `json:"result,omitempty"`
	ExecutionTime int64              `json:"executionTime"`
	NodesUsed     int                `json:"nodesUsed"`
}

func (s *Server) submitAndRespond(w http.ResponseWriter, r *http.Request, task *types.Task) {
	if !s.requireReady(w) {
		return
	}
	start := time.Now()
	result, err := s.vm.Submit(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskOutcome{
		TaskID:        task.ID,
		Success:       result.Success,
		Result:        result,
		ExecutionTime: time.Since(start).Milliseconds(),
		NodesUsed:     len(result.NodesUsed),
	})
}

type scaleRequest struct {
	Nodes    int                `json:"nodes"`
	Template types.NodeCapacity `json:"template,omitempty"`
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "malformed request body", err))
		return
	}
	if req.Nodes <= 0 {
		writeError(w, errs.New(errs.Validation, "nodes must be positive"))
		return
	}
	if req.Template.CPUCores <= 0 {
		req.Template = types.NodeCapacity{CPUCores: 4, MemoryMB: 4096}
	}

	if err := s.vm.Scale(r.Context(), req.Nodes, req.Template); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "scale request accepted",
	})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.vm.Registry().List()
	active := 0
	for _, n := range nodes {
		if n.Status == types.NodeStatusRunning {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":       nodes,
		"activeNodes": active,
	})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	node, ok := s.vm.Registry().Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "node not found", Kind: "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDrainNode(w http.ResponseWriter, r *http.Request) {
	s.setDraining(w, r, true)
}

func (s *Server) handleUndrainNode(w http.ResponseWriter, r *http.Request) {
	s.setDraining(w, r, false)
}

func (s *Server) setDraining(w http.ResponseWriter, r *http.Request, draining bool) {
	id := mux.Vars(r)["id"]
	if ok := s.vm.Registry().SetDraining(id, draining); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "node not found", Kind: "NotFound"})
		return
	}
	node, _ := s.vm.Registry().Get(id)
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := taskstore.Filter{}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = types.TaskKind(kind)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = types.TaskStatus(status)
	}

	summaries := s.vm.Tasks().List(filter)
	var active, completed, failed int
	for _, t := range summaries {
		switch t.Status {
		case types.TaskStatusRunning, types.TaskStatusPending:
			active++
		case types.TaskStatusCompleted:
			completed++
		case types.TaskStatusFailed:
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":          summaries,
		"activeTasks":    active,
		"completedTasks": completed,
		"failedTasks":    failed,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, ok := s.vm.Task(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "task not found", Kind: "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}
