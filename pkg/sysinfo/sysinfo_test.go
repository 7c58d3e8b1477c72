package sysinfo

import (
	"runtime"
	"testing"
)

func TestCollect(t *testing.T) {
	info := Collect()
	if info.Platform == "" || info.CPU == "" || info.Memory == "" {
		t.Fatalf("expected every field to be filled, got %+v", info)
	}
	if info.Cores <= 0 {
		t.Fatalf("expected positive core count, got %d", info.Cores)
	}
	if info.GoArch != runtime.GOARCH {
		t.Fatalf("expected goarch %s, got %s", runtime.GOARCH, info.GoArch)
	}
	if len(info.LogArgs())%2 != 0 {
		t.Fatalf("log args must come in pairs")
	}
}
