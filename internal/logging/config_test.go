package logging

import "testing"

func TestDefaultConfigPerMode(t *testing.T) {
	cli := DefaultConfig(ModeCLI)
	if *cli.Level != "error" || *cli.Sink != string(SinkStderr) || *cli.Format != string(FormatText) {
		t.Fatalf("CLI defaults = %s/%s/%s", *cli.Level, *cli.Sink, *cli.Format)
	}
	daemon := DefaultConfig(ModeDaemon)
	if *daemon.Level != "info" || *daemon.Sink != string(SinkFile) || *daemon.Format != string(FormatJSON) {
		t.Fatalf("daemon defaults = %s/%s/%s", *daemon.Level, *daemon.Sink, *daemon.Format)
	}
}

func TestWithEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogSink, "none")
	t.Setenv(EnvLogMaxBackups, "9")
	t.Setenv(EnvLogCompress, "off")

	cfg := DefaultConfig(ModeDaemon).WithEnv()
	if *cfg.Level != "debug" || *cfg.Sink != "none" {
		t.Fatalf("env overrides not applied: %s/%s", *cfg.Level, *cfg.Sink)
	}
	if *cfg.MaxBackups != 9 {
		t.Fatalf("MaxBackups = %d", *cfg.MaxBackups)
	}
	if *cfg.Compress {
		t.Fatalf("Compress should be disabled by off")
	}
}

func TestWithEnvIgnoresBadInt(t *testing.T) {
	t.Setenv(EnvLogMaxSizeMB, "not-a-number")
	cfg := DefaultConfig(ModeCLI).WithEnv()
	if *cfg.MaxSizeMB != 20 {
		t.Fatalf("MaxSizeMB = %d, want default 20", *cfg.MaxSizeMB)
	}
}

func TestNormalizeLowercasesAndValidates(t *testing.T) {
	level := "  DEBUG "
	cfg := Config{Level: &level}
	out, err := cfg.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if *out.Level != "debug" {
		t.Fatalf("Level = %q", *out.Level)
	}

	bad := "loud"
	if _, err := (Config{Level: &bad}).Normalize(); err == nil {
		t.Fatalf("Normalize() should reject invalid level")
	}
	badSink := "syslog"
	if _, err := (Config{Sink: &badSink}).Normalize(); err == nil {
		t.Fatalf("Normalize() should reject invalid sink")
	}
}

func TestNormalizeClampsNegatives(t *testing.T) {
	n := -3
	cfg := Config{MaxAgeDays: &n}
	out, err := cfg.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if *out.MaxAgeDays != 0 {
		t.Fatalf("MaxAgeDays = %d, want 0", *out.MaxAgeDays)
	}
}
