package std

import "testing"

func TestBuildSmuxConfigWarnsOnOversizedFrame(t *testing.T) {
	warnings, cfg, err := BuildSmuxConfig(2, 4194304, 65536, 8192, 10)
	if err != nil {
		t.Fatalf("BuildSmuxConfig: %v", err)
	}
	if cfg.MaxFrameSize != 8192 {
		t.Fatalf("MaxFrameSize = %d, want %d", cfg.MaxFrameSize, 8192)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning for a frame size exceeding the stream read buffer")
	}
}

func TestBuildSmuxConfigNoWarningWithinStaging(t *testing.T) {
	warnings, _, err := BuildSmuxConfig(2, 4194304, 65536, 2048, 10)
	if err != nil {
		t.Fatalf("BuildSmuxConfig: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestBuildSmuxConfigRejectsInvalidVersion(t *testing.T) {
	if _, _, err := BuildSmuxConfig(99, 4194304, 65536, 2048, 10); err == nil {
		t.Fatal("expected an error for an unsupported smux version")
	}
}
