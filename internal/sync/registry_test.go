package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/brightpath-energy/fieldsync/internal/models"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	reg.Register(models.ResourceJob, models.MutationCreate, succeed)

	if reg.Resolve(models.ResourceJob, models.MutationCreate) == nil {
		t.Error("registered pair should resolve")
	}
	if reg.Resolve(models.ResourceJob, models.MutationUpdate) != nil {
		t.Error("unregistered type should resolve to nil")
	}
	if reg.Resolve(models.ResourceVehicle, models.MutationCreate) != nil {
		t.Error("unregistered resource should resolve to nil")
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()

	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{Success: false, Message: "old"}, nil
		})
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{Success: true, Message: "new"}, nil
		})

	res, err := reg.Resolve(models.ResourceJob, models.MutationCreate)(context.Background(), nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !res.Success || res.Message != "new" {
		t.Errorf("Resolve returned the old handler: %+v", res)
	}
}

func TestRegistry_Keys(t *testing.T) {
	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate, succeed)
	reg.Register(models.ResourceVehicle, models.MutationDelete, succeed)

	keys := reg.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() returned %d entries, want 2", len(keys))
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["job:create"] || !seen["vehicle:delete"] {
		t.Errorf("Keys() = %v, want job:create and vehicle:delete", keys)
	}
}
