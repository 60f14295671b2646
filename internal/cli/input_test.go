package cli

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseInvocation_Defaults(t *testing.T) {
	inv, err := ParseInvocation(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Invocation{WorkDir: "."}
	if !reflect.DeepEqual(inv, want) {
		t.Fatalf("got %#v, want %#v", inv, want)
	}
	if !inv.Serve() {
		t.Fatalf("bare invocation should serve")
	}
}

func TestParseInvocation_FlagsAndTasksInterleaved(t *testing.T) {
	inv, err := ParseInvocation([]string{
		"-workdir", "site/./",
		"sass",
		"-production",
		"javascript",
		"-port", "8080",
		"-log-format", "json",
		"-trace", "out/../trace.jsonl",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.WorkDir != "site" {
		t.Fatalf("workdir not cleaned: %q", inv.WorkDir)
	}
	if !reflect.DeepEqual(inv.Tasks, []string{"sass", "javascript"}) {
		t.Fatalf("tasks = %v", inv.Tasks)
	}
	if !inv.Production || inv.Port != 8080 || inv.LogFormat != "json" {
		t.Fatalf("flags not applied: %#v", inv)
	}
	if !inv.Trace.Enabled || inv.Trace.Path != "trace.jsonl" {
		t.Fatalf("trace = %#v", inv.Trace)
	}
	if inv.Serve() {
		t.Fatalf("named tasks must not serve")
	}
}

func TestParseInvocation_NoServe(t *testing.T) {
	inv, err := ParseInvocation([]string{"-no-serve"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Serve() {
		t.Fatalf("-no-serve ignored")
	}
}

func TestParseInvocation_IgnoresEnvironmentVariables(t *testing.T) {
	args := []string{"-workdir", "/srv/site", "build"}
	inv1, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("SITEPIPE_PORT", "9999")
	t.Setenv("SITEPIPE_ENV", "production")
	t.Setenv("SITEPIPE_LOG_FORMAT", "json")

	inv2, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(inv1, inv2) {
		t.Fatalf("expected env vars to not affect parsing, got\n%#v\n%#v", inv1, inv2)
	}
}

func TestParseInvocation_Invalid(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":      {"-frobnicate"},
		"bad port":          {"-port", "70000"},
		"non-numeric port":  {"-port", "http"},
		"bad log format":    {"-log-format", "xml"},
		"bad log level":     {"-log-level", "loud"},
		"empty workdir":     {"-workdir", ""},
		"empty task":        {""},
		"list with tasks":   {"-list", "sass"},
		"missing flag args": {"-config"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInvocation(args)
			if err == nil {
				t.Fatalf("expected error")
			}
			var invErr *InvocationError
			if !errors.As(err, &invErr) {
				t.Fatalf("expected *InvocationError, got %T", err)
			}
			if ExitCode(err) != ExitInvalidInvocation {
				t.Fatalf("expected exit code %d, got %d", ExitInvalidInvocation, ExitCode(err))
			}
		})
	}
}

func TestParseInvocation_Help(t *testing.T) {
	for _, arg := range []string{"-h", "-help", "--help"} {
		t.Run(arg, func(t *testing.T) {
			inv, err := ParseInvocation([]string{"sass", arg, "-port", "70000"})
			if err != nil {
				t.Fatalf("help must not be an error: %v", err)
			}
			for _, want := range []string{"Usage: sitepipe", "-workdir", "-no-serve", "Project directory."} {
				if !strings.Contains(inv.Usage, want) {
					t.Fatalf("usage misses %q:\n%s", want, inv.Usage)
				}
			}
			if inv.Serve() {
				t.Fatalf("help must not serve")
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != ExitSuccess {
		t.Fatalf("nil: got %d", got)
	}
	if got := ExitCode(&InvocationError{ExitCode: ExitConfigError}); got != ExitConfigError {
		t.Fatalf("config: got %d", got)
	}
	if got := ExitCode(&InvocationError{}); got != ExitInvalidInvocation {
		t.Fatalf("zero code: got %d", got)
	}
	if got := ExitCode(errors.New("boom")); got != ExitInternalError {
		t.Fatalf("other: got %d", got)
	}
}
