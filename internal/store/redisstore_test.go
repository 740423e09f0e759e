package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/orchest/model"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "orchest-test")
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	inst := sampleInstance()

	if err := s.Save(ctx, inst); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != inst.ID || loaded.State != inst.State {
		t.Errorf("loaded instance differs: %+v", loaded)
	}
	if loaded.PhaseStates["build"].Tasks["compile"].State != model.TaskStateCompleted {
		t.Error("nested task state lost in save/load")
	}
	if loaded.CompletedAt == nil || !loaded.CompletedAt.Equal(*inst.CompletedAt) {
		t.Error("completion timestamp lost in save/load")
	}
}

func TestRedisStore_LoadNotFound(t *testing.T) {
	s := newTestRedisStore(t)

	_, err := s.Load(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown instance")
	}
	if code := model.CodeOf(err); code != model.ErrInstanceNotFound {
		t.Errorf("error code = %s, want %s", code, model.ErrInstanceNotFound)
	}
}

func TestRedisStore_Update(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	inst := sampleInstance()

	if err := s.Save(ctx, inst); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := s.Update(ctx, inst.ID, func(in *model.WorkflowInstance) error {
		in.State = model.MachineStateFailed
		in.Error = "disk full"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := s.Load(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State != model.MachineStateFailed || loaded.Error != "disk full" {
		t.Errorf("mutation not persisted: %+v", loaded)
	}

	err = s.Update(ctx, "missing", func(*model.WorkflowInstance) error { return nil })
	if code := model.CodeOf(err); code != model.ErrInstanceNotFound {
		t.Errorf("unknown instance error code = %s, want %s", code, model.ErrInstanceNotFound)
	}
}

func TestRedisStore_List(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	i1 := sampleInstance()
	i2 := sampleInstance()
	i2.ID = "inst-43"
	i2.WorkflowID = "onboarding"
	i2.State = model.MachineStateRunning
	i2.StartedAt = i1.StartedAt.Add(1)

	for _, inst := range []*model.WorkflowInstance{i1, i2} {
		if err := s.Save(ctx, inst); err != nil {
			t.Fatalf("Save %s: %v", inst.ID, err)
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d instances, want 2", len(all))
	}
	if all[0].ID != "inst-43" {
		t.Errorf("List order wrong, first = %s", all[0].ID)
	}

	filtered, err := s.List(ctx, Filter{WorkflowID: "release"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != i1.ID {
		t.Errorf("workflow filter wrong: %+v", filtered)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	inst := sampleInstance()

	if err := s.Save(ctx, inst); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, inst.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, inst.ID); err == nil {
		t.Error("Load after Delete should fail")
	}
	if err := s.Delete(ctx, inst.ID); err == nil {
		t.Error("second Delete should fail")
	}

	// The index must not resurrect deleted instances in listings.
	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List after Delete returned %d instances, want 0", len(all))
	}
}

func TestRedisStore_HealthCheck(t *testing.T) {
	s := newTestRedisStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
