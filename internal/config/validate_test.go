package config

import "testing"

func TestValidate_RejectsEmptyHosts(t *testing.T) {
	cfg := NewForTesting()
	cfg.Hosts = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty hosts")
	}
}

func TestValidate_RejectsNonPositiveWorkers(t *testing.T) {
	cfg := NewForTesting()
	cfg.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero workers")
	}
}

func TestValidate_RejectsOutOfRangeMatrixLoad(t *testing.T) {
	cfg := NewForTesting()
	cfg.MatrixLoad = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for matrix load > 1")
	}

	cfg2 := NewForTesting()
	cfg2.MatrixLoad = 0
	if err := cfg2.Validate(); err == nil {
		t.Fatalf("expected error for matrix load <= 0")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := NewForTesting()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
