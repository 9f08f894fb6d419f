package lifecycle

import "testing"

func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    RestartPolicy
		wantErr bool
	}{
		{"never", RestartNever, false},
		{" On-Failure ", RestartOnFailure, false},
		{"on_failure", RestartOnFailure, false},
		{"always", RestartAlways, false},
		{"sometimes", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRestartPolicy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRestartPolicy(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseRestartPolicy(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMonitoringConfigHook(t *testing.T) {
	cfg := MonitoringConfig{Hooks: map[string]string{HookOnFailure: "  page-oncall  ", HookOnHealthy: "   "}}
	if cmd, ok := cfg.Hook(HookOnFailure); !ok || cmd != "page-oncall" {
		t.Fatalf("Hook(on_failure) = %q, %v", cmd, ok)
	}
	if _, ok := cfg.Hook(HookOnHealthy); ok {
		t.Fatal("blank hook command should be treated as unset")
	}
	if _, ok := (MonitoringConfig{}).Hook(HookOnFailure); ok {
		t.Fatal("nil hook map should report unset")
	}
}

func TestHealthyFollowsReachability(t *testing.T) {
	if (HealthStatus{State: StateRunning}).Healthy() {
		t.Fatal("unreachable vm reported healthy")
	}
	if !(HealthStatus{State: StateRunning, SSHReachable: true}).Healthy() {
		t.Fatal("reachable vm reported unhealthy")
	}
}
