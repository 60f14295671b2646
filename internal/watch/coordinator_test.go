package watch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"sitepipe/internal/dag"
	"sitepipe/internal/notify"
	"sitepipe/internal/transform"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
	gate      chan struct{}
	fail      map[string]error
}

func (f *fakeRunner) Run(_ context.Context, target string) (*dag.GraphResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	if err := f.fail[target]; err != nil {
		return &dag.GraphResult{Target: target, Err: err}, err
	}
	return &dag.GraphResult{Target: target}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeReloader struct {
	mu      sync.Mutex
	reloads int
	errors  []string
}

func (r *fakeReloader) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
}

func (r *fakeReloader) BuildError(stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, stage+": "+message)
}

func (r *fakeReloader) snapshot() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads, append([]string(nil), r.errors...)
}

var testBindings = []Binding{
	{Name: "html", Patterns: []string{"src/*.html"}, Tasks: []string{"watch-html"}},
	{Name: "sass", Patterns: []string{"src/sass/**/*.{sass,scss}"}, Tasks: []string{"watch-sass"}},
	{Name: "js", Patterns: []string{"src/js/**/*.js", "!src/js/libs/**"}, Tasks: []string{"watch-js"}},
	{Name: "img", Patterns: []string{"src/images/**/*.{png,svg}", "!src/images/sprites/**"}, Tasks: []string{"watch-img", "watch-sass"}},
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCoordinator_Match(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings})
	cases := map[string][]string{
		"src/index.html":           {"watch-html"},
		"src/sass/base/_grid.scss": {"watch-sass"},
		"src/js/app.js":            {"watch-js"},
		"src/js/libs/jquery.js":    nil,
		"src/images/logo.png":      {"watch-img", "watch-sass"},
		"src/images/sprites/a.png": nil,
		"src/partials/header.html": nil,
		"dist/css/styles.min.css":  nil,
	}
	for path, want := range cases {
		if got := c.Match(path); !reflect.DeepEqual(got, want) {
			t.Fatalf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCoordinator_SuccessReloads(t *testing.T) {
	runner := &fakeRunner{}
	reloader := &fakeReloader{}
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings, Runner: runner, Reloader: reloader})

	if c.Trigger(context.Background(), "README.md") {
		t.Fatalf("unbound path must not trigger")
	}
	if !c.Trigger(context.Background(), "src/index.html") {
		t.Fatalf("bound path must trigger")
	}
	c.Wait()

	if got := runner.Calls(); !reflect.DeepEqual(got, []string{"watch-html"}) {
		t.Fatalf("calls = %v", got)
	}
	reloads, errs := reloader.snapshot()
	if reloads != 1 || len(errs) != 0 {
		t.Fatalf("reloads=%d errors=%v", reloads, errs)
	}
	if c.State() != Idle {
		t.Fatalf("state = %s", c.State())
	}
}

func TestCoordinator_CoalescesChangesDuringRun(t *testing.T) {
	runner := &fakeRunner{gate: make(chan struct{})}
	reloader := &fakeReloader{}
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings, Runner: runner, Reloader: reloader})
	ctx := context.Background()

	c.Trigger(ctx, "src/index.html")
	waitUntil(t, "first run to start", func() bool { return len(runner.Calls()) == 1 })
	if c.State() != Running {
		t.Fatalf("state = %s, want running", c.State())
	}

	c.Trigger(ctx, "src/sass/main.scss")
	c.Trigger(ctx, "src/sass/_vars.scss")
	c.Trigger(ctx, "src/index.html")
	if got := runner.Calls(); len(got) != 1 {
		t.Fatalf("run started while another was running: %v", got)
	}

	close(runner.gate)
	c.Wait()

	want := []string{"watch-html", "watch-sass", "watch-html"}
	if got := runner.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if runner.maxActive != 1 {
		t.Fatalf("runs overlapped: max active %d", runner.maxActive)
	}
	if reloads, _ := reloader.snapshot(); reloads != 2 {
		t.Fatalf("expected one reload per run, got %d", reloads)
	}
}

func TestCoordinator_FailureReportsAndRecovers(t *testing.T) {
	cause := &transform.TransformError{Stage: "sass", Message: "main.scss: expected \";\""}
	runner := &fakeRunner{fail: map[string]error{
		"watch-sass": &dag.TaskError{Task: "sass", Err: cause},
	}}
	reloader := &fakeReloader{}
	notes := &notify.Recorder{}
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings, Runner: runner, Reloader: reloader, Notifier: notes})

	c.Trigger(context.Background(), "src/sass/main.scss")
	c.Wait()

	reloads, errs := reloader.snapshot()
	if reloads != 0 {
		t.Fatalf("failed run must not reload")
	}
	if !reflect.DeepEqual(errs, []string{"sass: main.scss: expected \";\""}) {
		t.Fatalf("build errors = %v", errs)
	}
	if msgs := notes.Messages(); len(msgs) != 1 || msgs[0].Title != "sass" {
		t.Fatalf("notifications = %+v", msgs)
	}
	if c.State() != Idle {
		t.Fatalf("state = %s after failure", c.State())
	}

	c.Trigger(context.Background(), "src/index.html")
	c.Wait()
	if reloads, _ := reloader.snapshot(); reloads != 1 {
		t.Fatalf("coordinator did not recover after failure")
	}
}

func TestCoordinator_FailureStopsBatch(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"watch-img": errors.New("decode failed")}}
	reloader := &fakeReloader{}
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings, Runner: runner, Reloader: reloader})

	c.Trigger(context.Background(), "src/images/logo.png")
	c.Wait()
	if got := runner.Calls(); !reflect.DeepEqual(got, []string{"watch-img"}) {
		t.Fatalf("tasks after a failure must not run: %v", got)
	}
	if _, errs := reloader.snapshot(); !reflect.DeepEqual(errs, []string{"watch-img: decode failed"}) {
		t.Fatalf("build errors = %v", errs)
	}
}

func TestCoordinator_RunConsumesBatches(t *testing.T) {
	runner := &fakeRunner{}
	c := NewCoordinator(CoordinatorOptions{Bindings: testBindings, Runner: runner})
	batches := make(chan []string)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), batches)
		close(done)
	}()

	batches <- []string{"notes.txt"}
	batches <- []string{"src/js/app.js", "src/js/util.js"}
	close(batches)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after batches closed")
	}
	if got := runner.Calls(); !reflect.DeepEqual(got, []string{"watch-js"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestDescribe(t *testing.T) {
	stage, msg := Describe("watch-js", &dag.TaskError{Task: "lint-js", Err: errors.New("boom")})
	if stage != "lint-js" || msg != "boom" {
		t.Fatalf("Describe = %q, %q", stage, msg)
	}
	stage, _ = Describe("watch-js", errors.New("plain"))
	if stage != "watch-js" {
		t.Fatalf("Describe fallback stage = %q", stage)
	}
}
