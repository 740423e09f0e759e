// Package engine owns workflow instances and drives them through their
// phases. All instance mutation goes through the state machine; phase and
// task executors only touch the nested state they are handed.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/definition"
	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/internal/observability"
	"github.com/pitabwire/orchest/internal/phase"
	"github.com/pitabwire/orchest/internal/store"
	"github.com/pitabwire/orchest/internal/transition"
	"github.com/pitabwire/orchest/model"
)

// StateMachine is the top-level orchestrator. It owns the in-memory table
// of workflow instances, serializes compound operations per instance, and
// persists a snapshot after every mutation.
type StateMachine struct {
	defs        definition.Provider
	store       store.Store
	sink        notify.Sink
	phases      *phase.Executor
	transitions transition.Validator
	opts        Options
	backoff     Strategy
	logger      *zap.Logger
	metrics     *observability.Metrics

	// mu guards the maps below, all instance field mutation, and the nested
	// task state: the phase executor takes it through phase.Context whenever
	// it records a task outcome, so codec clones under RLock never observe a
	// half-written task.
	mu        sync.RWMutex
	instances map[string]*model.WorkflowInstance
	ops       map[string]*sync.Mutex
	cancels   map[string]context.CancelFunc
}

// NewStateMachine wires the orchestrator. st may be nil when persistence is
// disabled; metrics may be nil.
func NewStateMachine(
	defs definition.Provider,
	st store.Store,
	sink notify.Sink,
	phases *phase.Executor,
	transitions transition.Validator,
	opts Options,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *StateMachine {
	return &StateMachine{
		defs:        defs,
		store:       st,
		sink:        sink,
		phases:      phases,
		transitions: transitions,
		opts:        opts,
		backoff:     NewStrategy(opts.RetryBackoff, opts.RetryDelay),
		logger:      logger,
		metrics:     metrics,
		instances:   make(map[string]*model.WorkflowInstance),
		ops:         make(map[string]*sync.Mutex),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// StartWorkflow creates an instance of the named workflow and synchronously
// executes phases from the initial phase until the chain completes, stalls
// on a gate, or fails. The instance is returned even when execution fails;
// its state and error fields reflect the outcome.
func (m *StateMachine) StartWorkflow(ctx context.Context, workflowID string, metadata map[string]any) (inst *model.WorkflowInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.StartWorkflow",
		observability.AttrWorkflowID.String(workflowID))
	defer func() { observability.EndSpanWithError(span, err) }()

	def, ok := m.defs.Workflow(workflowID)
	if !ok {
		return nil, model.NewWorkflowNotFoundError(workflowID)
	}

	inst = &model.WorkflowInstance{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		State:        model.MachineStateRunning,
		CurrentPhase: def.InitialPhase,
		PhaseStates:  make(map[string]*model.PhaseInstance, len(def.Phases)),
		StartedAt:    time.Now().UTC(),
		Metadata:     metadata,
	}
	// Phase state keys are fixed at creation to exactly the definition's
	// phase IDs.
	for _, p := range def.Phases {
		inst.PhaseStates[p.ID] = &model.PhaseInstance{PhaseID: p.ID, State: model.PhaseStatePending}
	}
	span.SetAttributes(observability.AttrInstanceID.String(inst.ID))

	m.mu.Lock()
	m.instances[inst.ID] = inst
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventWorkflowStarted,
		Payload: map[string]any{
			"instanceId": inst.ID,
			"workflowId": workflowID,
		},
	})
	if m.metrics != nil {
		m.metrics.RecordWorkflowStart(workflowID)
	}
	m.logger.Info("workflow started",
		zap.String("workflow_id", workflowID),
		zap.String("instance_id", inst.ID))

	err = m.runFrom(ctx, inst, def.InitialPhase)
	return m.clone(inst), err
}

// GetWorkflowInstance returns an independent copy of the instance. Unknown
// in-memory IDs fall back to the persistence layer so completed runs stay
// inspectable across restarts.
func (m *StateMachine) GetWorkflowInstance(ctx context.Context, instanceID string) (*model.WorkflowInstance, error) {
	m.mu.RLock()
	inst, ok := m.instances[instanceID]
	m.mu.RUnlock()
	if ok {
		return m.clone(inst), nil
	}
	if m.opts.EnablePersistence && m.store != nil {
		return m.store.Load(ctx, instanceID)
	}
	return nil, model.NewInstanceNotFoundError(instanceID)
}

// ListInstances returns summaries of instances matching the filter, most
// recently started first.
func (m *StateMachine) ListInstances(ctx context.Context, filter store.Filter) ([]model.WorkflowSummary, error) {
	if m.opts.EnablePersistence && m.store != nil {
		instances, err := m.store.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out := make([]model.WorkflowSummary, 0, len(instances))
		for _, inst := range instances {
			out = append(out, inst.Summary())
		}
		return out, nil
	}

	m.mu.RLock()
	var out []model.WorkflowSummary
	for _, inst := range m.instances {
		if filter.WorkflowID != "" && inst.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.State != "" && inst.State != filter.State {
			continue
		}
		out = append(out, inst.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []model.WorkflowSummary{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PauseWorkflow suspends a running instance. Any in-flight phase execution
// is cancelled; its late results are discarded.
func (m *StateMachine) PauseWorkflow(ctx context.Context, instanceID string) (*model.WorkflowInstance, error) {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	if !ok {
		m.mu.Unlock()
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	if inst.State != model.MachineStateRunning {
		state := inst.State
		m.mu.Unlock()
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("cannot pause workflow instance in state %q", state))
	}
	inst.State = model.MachineStatePaused
	cancel := m.cancels[instanceID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.persist(ctx, inst)
	m.logger.Info("workflow paused", zap.String("instance_id", instanceID))
	return m.clone(inst), nil
}

// ResumeWorkflow returns a paused instance to running and re-executes its
// current phase. Re-execution is idempotent: tasks that already completed
// are not redone.
func (m *StateMachine) ResumeWorkflow(ctx context.Context, instanceID string) (*model.WorkflowInstance, error) {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	if !ok {
		m.mu.Unlock()
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	if inst.State != model.MachineStatePaused {
		state := inst.State
		m.mu.Unlock()
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("cannot resume workflow instance in state %q", state))
	}
	if inst.CurrentPhase == "" {
		m.mu.Unlock()
		return nil, model.NewNoCurrentPhaseError(instanceID)
	}
	inst.State = model.MachineStateRunning
	phaseID := inst.CurrentPhase
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.logger.Info("workflow resumed",
		zap.String("instance_id", instanceID),
		zap.String("phase_id", phaseID))

	err := m.runFrom(ctx, inst, phaseID)
	return m.clone(inst), err
}

// CancelWorkflow terminates a non-terminal instance: state failed, the
// reason recorded as the error, completion time stamped. In-flight phase
// execution is cancelled and its late outcome discarded.
func (m *StateMachine) CancelWorkflow(ctx context.Context, instanceID, reason string) error {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	if !ok {
		m.mu.Unlock()
		return model.NewInstanceNotFoundError(instanceID)
	}
	if inst.State.Terminal() {
		state := inst.State
		m.mu.Unlock()
		return model.NewInvalidStateError(
			fmt.Sprintf("cannot cancel workflow instance in state %q", state))
	}
	now := time.Now().UTC()
	inst.State = model.MachineStateFailed
	inst.Error = reason
	inst.CompletedAt = &now
	cancel := m.cancels[instanceID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.persist(ctx, inst)
	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventWorkflowFailed,
		Payload: map[string]any{
			"instanceId": instanceID,
			"workflowId": inst.WorkflowID,
			"error":      reason,
			"cancelled":  true,
		},
	})
	if m.metrics != nil {
		m.metrics.RecordWorkflowCompletion(inst.WorkflowID, "cancelled")
	}
	m.logger.Info("workflow cancelled",
		zap.String("instance_id", instanceID),
		zap.String("reason", reason))
	return nil
}

// TransitionToPhase moves a running instance to the target phase after the
// transition validator admits it, then synchronously executes from there.
// metadata overrides the instance metadata for condition and approval
// evaluation.
func (m *StateMachine) TransitionToPhase(ctx context.Context, instanceID, targetID string, metadata map[string]any) (_ *model.WorkflowInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.TransitionToPhase",
		observability.AttrInstanceID.String(instanceID),
		observability.AttrPhaseID.String(targetID))
	defer func() { observability.EndSpanWithError(span, err) }()

	op := m.opLock(instanceID)
	op.Lock()
	defer op.Unlock()

	m.mu.RLock()
	inst, ok := m.instances[instanceID]
	m.mu.RUnlock()
	if !ok {
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	if m.stateOf(inst) != model.MachineStateRunning {
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("cannot transition workflow instance in state %q", m.stateOf(inst)))
	}

	m.mu.RLock()
	fromID := inst.CurrentPhase
	m.mu.RUnlock()
	if fromID == "" {
		return nil, model.NewNoCurrentPhaseError(instanceID)
	}
	if _, ok := m.defs.Phase(inst.WorkflowID, targetID); !ok {
		return nil, model.NewTransitionPhaseNotFoundError(fromID, targetID, targetID)
	}

	allowed, err := m.gate(ctx, inst, fromID, targetID, metadata)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.NewTransitionError(fromID, targetID,
			fmt.Sprintf("transition from %q to %q denied", fromID, targetID))
	}

	m.completePhase(ctx, inst, fromID)
	m.advance(ctx, inst, targetID)

	err = m.runChain(ctx, inst, targetID)
	return m.clone(inst), err
}

// --- chain execution ---

// runFrom serializes the chain under the instance's operation lock.
func (m *StateMachine) runFrom(ctx context.Context, inst *model.WorkflowInstance, phaseID string) error {
	op := m.opLock(inst.ID)
	op.Lock()
	defer op.Unlock()
	return m.runChain(ctx, inst, phaseID)
}

// runChain executes phases starting at phaseID until the workflow
// completes, a gate or branch stalls the chain, the instance leaves the
// running state, or a phase exhausts its retries. The caller must hold the
// instance's operation lock.
func (m *StateMachine) runChain(ctx context.Context, inst *model.WorkflowInstance, phaseID string) error {
	// The run context outlives the caller's deadline but is cancelled by
	// pause/cancel, so late task results are discarded.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.cancels[inst.ID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, inst.ID)
		m.mu.Unlock()
	}()

	for {
		if m.stateOf(inst) != model.MachineStateRunning {
			return nil
		}

		phaseDef, ok := m.defs.Phase(inst.WorkflowID, phaseID)
		if !ok {
			err := model.NewPhaseNotFoundError(inst.WorkflowID, phaseID)
			m.failWorkflow(runCtx, inst, err.Error())
			return err
		}

		if err := m.executeWithRetry(runCtx, inst, phaseDef); err != nil {
			if m.stateOf(inst) != model.MachineStateRunning {
				// Pause/cancel raced the failure; their state wins and the
				// late outcome is discarded.
				return nil
			}
			m.failWorkflow(runCtx, inst, err.Error())
			return err
		}
		m.completePhase(runCtx, inst, phaseID)

		next := phaseDef.NextPhases
		if len(next) == 0 {
			m.completeWorkflow(runCtx, inst)
			return nil
		}
		if len(next) > 1 {
			// Branching workflows require an explicit transition request.
			m.logger.Info("phase declares multiple next phases, awaiting explicit transition",
				zap.String("instance_id", inst.ID),
				zap.String("phase_id", phaseID),
				zap.Strings("next_phases", next))
			return nil
		}

		target := next[0]
		allowed, err := m.gate(runCtx, inst, phaseID, target, nil)
		if err != nil {
			m.failWorkflow(runCtx, inst, err.Error())
			return err
		}
		if !allowed {
			// Conditions or approval unsatisfied: stay on the completed
			// phase until an explicit transition supplies them.
			m.logger.Info("auto-transition gated, awaiting explicit transition",
				zap.String("instance_id", inst.ID),
				zap.String("from", phaseID),
				zap.String("to", target))
			return nil
		}
		m.advance(runCtx, inst, target)
		phaseID = target
	}
}

// executeWithRetry attempts one phase, applying the retry policy between
// failed attempts.
func (m *StateMachine) executeWithRetry(ctx context.Context, inst *model.WorkflowInstance, phaseDef model.PhaseDefinition) error {
	for {
		err := m.executeAttempt(ctx, inst, phaseDef)
		if err == nil {
			return nil
		}
		if m.stateOf(inst) != model.MachineStateRunning {
			return err
		}

		// The phase's persisted retry counter bounds the policy, not a
		// loop-local attempt count: a phase resumed mid-retry keeps the
		// budget it already spent.
		m.mu.RLock()
		retries := 0
		if pi := inst.PhaseStates[phaseDef.ID]; pi != nil {
			retries = pi.Retries
		}
		m.mu.RUnlock()
		if !m.opts.EnableRetries || retries >= m.opts.MaxRetries {
			m.failPhase(ctx, inst, phaseDef.ID, err)
			return err
		}

		m.mu.Lock()
		if pi := inst.PhaseStates[phaseDef.ID]; pi != nil {
			pi.Retries++
		}
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordPhaseRetry(inst.WorkflowID, phaseDef.ID)
		}

		if m.opts.EnableRollback {
			m.phases.RollbackPhase(phase.Context{
				WorkflowID: inst.WorkflowID,
				InstanceID: inst.ID,
				Phase:      phaseDef,
				Instance:   inst.PhaseStates[phaseDef.ID],
				Mu:         &m.mu,
			})
			m.persist(ctx, inst)
		}

		delay := m.backoff.Delay(retries)
		m.logger.Warn("phase execution failed, retrying",
			zap.String("instance_id", inst.ID),
			zap.String("phase_id", phaseDef.ID),
			zap.Int("retry", retries+1),
			zap.Int("max_retries", m.opts.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

// executeAttempt marks the phase active and runs its task graph once.
func (m *StateMachine) executeAttempt(ctx context.Context, inst *model.WorkflowInstance, phaseDef model.PhaseDefinition) (err error) {
	ctx, span := observability.StartSpan(ctx, "engine.ExecutePhase",
		observability.AttrWorkflowID.String(inst.WorkflowID),
		observability.AttrInstanceID.String(inst.ID),
		observability.AttrPhaseID.String(phaseDef.ID))
	defer func() { observability.EndSpanWithError(span, err) }()

	m.mu.Lock()
	pi := inst.PhaseStates[phaseDef.ID]
	if pi == nil {
		pi = &model.PhaseInstance{PhaseID: phaseDef.ID, State: model.PhaseStatePending}
		inst.PhaseStates[phaseDef.ID] = pi
	}
	now := time.Now().UTC()
	pi.State = model.PhaseStateActive
	if pi.StartedAt == nil {
		pi.StartedAt = &now
	}
	pi.Error = ""
	metadata := inst.Metadata
	m.mu.Unlock()

	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventPhaseStarted,
		Payload: map[string]any{
			"instanceId": inst.ID,
			"phaseId":    phaseDef.ID,
		},
	})
	m.persist(ctx, inst)

	attemptCtx := ctx
	if m.opts.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, m.opts.DefaultTimeout)
		defer cancel()
	}

	start := time.Now()
	err = m.phases.ExecutePhase(attemptCtx, phase.Context{
		WorkflowID: inst.WorkflowID,
		InstanceID: inst.ID,
		Phase:      phaseDef,
		Instance:   pi,
		Mu:         &m.mu,
		Metadata:   metadata,
	})
	if m.metrics != nil {
		status := "completed"
		if err != nil {
			status = "failed"
		}
		m.metrics.RecordPhaseExecution(inst.WorkflowID, phaseDef.ID, status, time.Since(start))
	}
	m.persist(ctx, inst)
	return err
}

// gate validates one transition through the transition validator, emitting
// transition.requested first. nil metadata falls back to the instance's.
func (m *StateMachine) gate(ctx context.Context, inst *model.WorkflowInstance, fromID, toID string, metadata map[string]any) (bool, error) {
	fromDef, ok := m.defs.Phase(inst.WorkflowID, fromID)
	if !ok {
		return false, model.NewTransitionPhaseNotFoundError(fromID, toID, fromID)
	}
	toDef, ok := m.defs.Phase(inst.WorkflowID, toID)
	if !ok {
		return false, model.NewTransitionPhaseNotFoundError(fromID, toID, toID)
	}

	td, found := model.TransitionDefinition{}, false
	for _, t := range m.defs.AvailableTransitions(inst.WorkflowID, fromID) {
		if t.To == toID {
			td, found = t, true
			break
		}
	}
	if !found {
		declared := false
		for _, n := range fromDef.NextPhases {
			if n == toID {
				declared = true
				break
			}
		}
		if !declared {
			return false, model.NewTransitionError(fromID, toID,
				fmt.Sprintf("no transition declared from %q to %q", fromID, toID))
		}
		// A next-phase edge without an explicit transition record is an
		// unconditional transition.
		td = model.TransitionDefinition{From: fromID, To: toID}
	}

	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventTransitionRequested,
		Payload: map[string]any{
			"instanceId":    inst.ID,
			"from":          fromID,
			"targetPhaseId": toID,
		},
	})

	if metadata == nil {
		m.mu.RLock()
		metadata = inst.Metadata
		m.mu.RUnlock()
	}
	allowed := m.transitions.CanTransition(ctx, transition.Context{
		Instance:   inst,
		FromPhase:  fromDef,
		ToPhase:    toDef,
		Transition: td,
		Metadata:   metadata,
	})
	if m.metrics != nil {
		status := "allowed"
		if !allowed {
			status = "denied"
		}
		m.metrics.RecordTransition(inst.WorkflowID, fromID, toID, status)
	}
	return allowed, nil
}

// --- state mutation helpers ---

func (m *StateMachine) completePhase(ctx context.Context, inst *model.WorkflowInstance, phaseID string) {
	m.mu.Lock()
	pi := inst.PhaseStates[phaseID]
	if pi == nil || pi.State == model.PhaseStateCompleted {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	pi.State = model.PhaseStateCompleted
	pi.CompletedAt = &now
	pi.Error = ""
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.logger.Info("phase completed",
		zap.String("instance_id", inst.ID),
		zap.String("phase_id", phaseID))
}

func (m *StateMachine) failPhase(ctx context.Context, inst *model.WorkflowInstance, phaseID string, cause error) {
	m.mu.Lock()
	if pi := inst.PhaseStates[phaseID]; pi != nil {
		now := time.Now().UTC()
		pi.State = model.PhaseStateFailed
		pi.Error = cause.Error()
		pi.CompletedAt = &now
	}
	m.mu.Unlock()
	m.persist(ctx, inst)
}

// advance updates the current phase pointer. Called only after the outgoing
// phase is durably marked completed.
func (m *StateMachine) advance(ctx context.Context, inst *model.WorkflowInstance, target string) {
	m.mu.Lock()
	from := inst.CurrentPhase
	inst.CurrentPhase = target
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.logger.Info("transitioned to phase",
		zap.String("instance_id", inst.ID),
		zap.String("from", from),
		zap.String("to", target))
}

func (m *StateMachine) completeWorkflow(ctx context.Context, inst *model.WorkflowInstance) {
	m.mu.Lock()
	now := time.Now().UTC()
	inst.State = model.MachineStateCompleted
	inst.CompletedAt = &now
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventWorkflowCompleted,
		Payload: map[string]any{
			"instanceId": inst.ID,
			"workflowId": inst.WorkflowID,
		},
	})
	if m.metrics != nil {
		m.metrics.RecordWorkflowCompletion(inst.WorkflowID, "completed")
	}
	m.logger.Info("workflow completed", zap.String("instance_id", inst.ID))
}

func (m *StateMachine) failWorkflow(ctx context.Context, inst *model.WorkflowInstance, reason string) {
	m.mu.Lock()
	now := time.Now().UTC()
	inst.State = model.MachineStateFailed
	inst.Error = reason
	inst.CompletedAt = &now
	m.mu.Unlock()

	m.persist(ctx, inst)
	m.sink.Emit(ctx, notify.Event{
		Name: notify.EventWorkflowFailed,
		Payload: map[string]any{
			"instanceId": inst.ID,
			"workflowId": inst.WorkflowID,
			"error":      reason,
		},
	})
	if m.metrics != nil {
		m.metrics.RecordWorkflowCompletion(inst.WorkflowID, "failed")
	}
	m.logger.Error("workflow failed",
		zap.String("instance_id", inst.ID),
		zap.String("error", reason))
}

// --- plumbing ---

func (m *StateMachine) opLock(instanceID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[instanceID]
	if !ok {
		op = &sync.Mutex{}
		m.ops[instanceID] = op
	}
	return op
}

func (m *StateMachine) stateOf(inst *model.WorkflowInstance) model.MachineState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return inst.State
}

// clone deep-copies an instance through the snapshot codec so callers never
// observe concurrent mutation.
func (m *StateMachine) clone(inst *model.WorkflowInstance) *model.WorkflowInstance {
	m.mu.RLock()
	copied, err := store.CloneInstance(inst)
	m.mu.RUnlock()
	if err != nil {
		m.logger.Error("cloning workflow instance",
			zap.String("instance_id", inst.ID), zap.Error(err))
		return inst
	}
	return copied
}

// persist saves a snapshot when persistence is enabled. Store failures are
// logged, not propagated: the in-memory instance remains authoritative.
func (m *StateMachine) persist(ctx context.Context, inst *model.WorkflowInstance) {
	if !m.opts.EnablePersistence || m.store == nil {
		return
	}
	snap := m.clone(inst)
	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Error("persisting workflow instance",
			zap.String("instance_id", inst.ID), zap.Error(err))
	}
}
