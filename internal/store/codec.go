package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pitabwire/orchest/model"
)

// Snapshot wire format. Phase and task maps are serialized as arrays sorted
// by ID so the encoding is deterministic, and timestamps as RFC 3339 with
// nanoseconds so round-trips preserve them exactly.

type instanceSnapshot struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	State        string          `json:"state"`
	CurrentPhase string          `json:"current_phase,omitempty"`
	Phases       []phaseSnapshot `json:"phases"`
	StartedAt    string          `json:"started_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type phaseSnapshot struct {
	PhaseID     string         `json:"phase_id"`
	State       string         `json:"state"`
	Tasks       []taskSnapshot `json:"tasks"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
}

type taskSnapshot struct {
	TaskID      string           `json:"task_id"`
	State       string           `json:"state"`
	StartedAt   string           `json:"started_at,omitempty"`
	CompletedAt string           `json:"completed_at,omitempty"`
	Result      model.TaskResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Retries     int              `json:"retries"`
}

// EncodeInstance serializes a workflow instance to its snapshot form.
func EncodeInstance(inst *model.WorkflowInstance) ([]byte, error) {
	snap := instanceSnapshot{
		ID:           inst.ID,
		WorkflowID:   inst.WorkflowID,
		State:        string(inst.State),
		CurrentPhase: inst.CurrentPhase,
		StartedAt:    encodeTime(inst.StartedAt),
		CompletedAt:  encodeTimePtr(inst.CompletedAt),
		Error:        inst.Error,
		Metadata:     inst.Metadata,
	}

	snap.Phases = make([]phaseSnapshot, 0, len(inst.PhaseStates))
	for _, pi := range inst.PhaseStates {
		ps := phaseSnapshot{
			PhaseID:     pi.PhaseID,
			State:       string(pi.State),
			StartedAt:   encodeTimePtr(pi.StartedAt),
			CompletedAt: encodeTimePtr(pi.CompletedAt),
			Error:       pi.Error,
			Retries:     pi.Retries,
		}
		ps.Tasks = make([]taskSnapshot, 0, len(pi.Tasks))
		for _, ti := range pi.Tasks {
			ps.Tasks = append(ps.Tasks, taskSnapshot{
				TaskID:      ti.TaskID,
				State:       string(ti.State),
				StartedAt:   encodeTimePtr(ti.StartedAt),
				CompletedAt: encodeTimePtr(ti.CompletedAt),
				Result:      ti.Result,
				Error:       ti.Error,
				Retries:     ti.Retries,
			})
		}
		sort.Slice(ps.Tasks, func(i, j int) bool { return ps.Tasks[i].TaskID < ps.Tasks[j].TaskID })
		snap.Phases = append(snap.Phases, ps)
	}
	sort.Slice(snap.Phases, func(i, j int) bool { return snap.Phases[i].PhaseID < snap.Phases[j].PhaseID })

	return json.Marshal(snap)
}

// DecodeInstance deserializes a snapshot back into a workflow instance.
func DecodeInstance(data []byte) (*model.WorkflowInstance, error) {
	var snap instanceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: decoding instance snapshot: %w", err)
	}

	startedAt, err := decodeTime(snap.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("store: instance %s started_at: %w", snap.ID, err)
	}
	completedAt, err := decodeTimePtr(snap.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("store: instance %s completed_at: %w", snap.ID, err)
	}

	inst := &model.WorkflowInstance{
		ID:           snap.ID,
		WorkflowID:   snap.WorkflowID,
		State:        model.MachineState(snap.State),
		CurrentPhase: snap.CurrentPhase,
		PhaseStates:  make(map[string]*model.PhaseInstance, len(snap.Phases)),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		Error:        snap.Error,
		Metadata:     snap.Metadata,
	}

	for _, ps := range snap.Phases {
		pi := &model.PhaseInstance{
			PhaseID: ps.PhaseID,
			State:   model.PhaseState(ps.State),
			Tasks:   make(map[string]*model.TaskInstance, len(ps.Tasks)),
			Error:   ps.Error,
			Retries: ps.Retries,
		}
		if pi.StartedAt, err = decodeTimePtr(ps.StartedAt); err != nil {
			return nil, fmt.Errorf("store: phase %s started_at: %w", ps.PhaseID, err)
		}
		if pi.CompletedAt, err = decodeTimePtr(ps.CompletedAt); err != nil {
			return nil, fmt.Errorf("store: phase %s completed_at: %w", ps.PhaseID, err)
		}
		for _, ts := range ps.Tasks {
			ti := &model.TaskInstance{
				TaskID:  ts.TaskID,
				State:   model.TaskState(ts.State),
				Result:  ts.Result,
				Error:   ts.Error,
				Retries: ts.Retries,
			}
			if ti.StartedAt, err = decodeTimePtr(ts.StartedAt); err != nil {
				return nil, fmt.Errorf("store: task %s started_at: %w", ts.TaskID, err)
			}
			if ti.CompletedAt, err = decodeTimePtr(ts.CompletedAt); err != nil {
				return nil, fmt.Errorf("store: task %s completed_at: %w", ts.TaskID, err)
			}
			pi.Tasks[ti.TaskID] = ti
		}
		inst.PhaseStates[pi.PhaseID] = pi
	}

	return inst, nil
}

// CloneInstance deep-copies an instance through the snapshot codec.
func CloneInstance(inst *model.WorkflowInstance) (*model.WorkflowInstance, error) {
	data, err := EncodeInstance(inst)
	if err != nil {
		return nil, err
	}
	return DecodeInstance(data)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decodeTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
