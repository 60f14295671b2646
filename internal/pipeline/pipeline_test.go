package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"sitepipe/internal/config"
	"sitepipe/internal/dag"
	"sitepipe/internal/fsync"
	"sitepipe/internal/publish"
	"sitepipe/internal/trace"
	"sitepipe/internal/transform"
)

// fakeSass stands in for the Sass CLI: entries are already plain CSS.
var fakeSass = transform.Func{Name: transform.StageSass, Fn: func(_ context.Context, in []transform.File) ([]transform.File, error) {
	var css bytes.Buffer
	for _, f := range in {
		if bytes.Contains(f.Data, []byte("@error")) {
			return nil, &transform.TransformError{Stage: transform.StageSass, Message: f.Path + ": forced error"}
		}
		css.Write(f.Data)
		css.WriteByte('\n')
	}
	return []transform.File{{Path: "css/styles.css", Data: css.Bytes()}}, nil
}}

func writeSite(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func baseSite() map[string]string {
	return map[string]string{
		"src/index.html":              `<html><head><link rel="stylesheet" href="css/styles.min.css"></head><body><script src="js/scripts.min.js"></script></body></html>`,
		"src/libs/vendor.js":          "window.vendor = 1;",
		"src/libs/vendor.css":         ".vendor{}",
		"src/fonts/sans/regular.woff": "WOFF",
		"src/js/app.js":               "document.title = 'app';",
		"src/js/libs/skip.js":         "this is not javascript",
		"src/sass/main.scss":          "body { display: flex }",
		"src/sass/_partial.scss":      "",
		"src/images/icons/dot.svg":    `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1 1">  <!-- c -->  <rect width="1" height="1"/></svg>`,
		"src/images/sprites/raw.svg":  `<svg xmlns="http://www.w3.org/2000/svg"></svg>`,
	}
}

func newTestContext(t *testing.T, root string, opts Options) *Context {
	t.Helper()
	cfg := config.Default()
	cfg.Root = root
	cfg.DesktopNotify = false
	opts.Config = cfg
	if opts.Transforms.Sass == nil {
		opts.Transforms.Sass = fakeSass
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func tree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestNew_RegistersAllTasks(t *testing.T) {
	c := newTestContext(t, t.TempDir(), Options{})
	for _, name := range []string{
		TaskHTML, TaskCopyJS, TaskCopyCSS, TaskCopyFonts, TaskLintJS, TaskJavaScript,
		TaskImages, TaskSass, TaskCachebust, TaskDeleteAll, TaskCreateFolders, TaskReset,
		TaskAssets, TaskBuild, TaskPublish, TaskWatchHTML, TaskWatchSass, TaskWatchJS, TaskWatchImages,
	} {
		if _, ok := c.Registry.Lookup(name); !ok {
			t.Fatalf("task %q not registered", name)
		}
	}
	for _, b := range c.Bindings() {
		for _, task := range b.Tasks {
			if _, ok := c.Registry.Lookup(task); !ok {
				t.Fatalf("binding %s names unknown task %q", b.Name, task)
			}
		}
	}
}

func TestReset_CleansToSkeleton(t *testing.T) {
	root := t.TempDir()
	c := newTestContext(t, root, Options{})
	stale := filepath.Join(c.Output.Root(), "old", "stale.txt")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := c.Run(context.Background(), TaskReset)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reflect.DeepEqual(res.ExecutionOrder, []string{TaskReset}) {
		t.Fatalf("reset ran %v", res.ExecutionOrder)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file survived reset")
	}
	for _, dir := range c.Config.Skeleton {
		if info, err := os.Stat(filepath.Join(c.Output.Root(), filepath.FromSlash(dir))); err != nil || !info.IsDir() {
			t.Fatalf("skeleton directory %s missing", dir)
		}
	}
}

func TestBuild_ProducesOutputTree(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	rec := trace.NewRecorder()
	c := newTestContext(t, root, Options{Sink: rec})

	res, err := c.Run(context.Background(), TaskBuild)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("build did not succeed: %+v", res)
	}

	got := tree(t, c.Output.Root())
	want := []string{
		"css/styles.min.css", "css/styles.min.css.map", "css/vendor.css",
		"fonts/sans/regular.woff",
		"images/icons/dot.svg",
		"index.html",
		"js/scripts.min.js", "js/scripts.min.js.map", "js/vendor.js",
	}
	if !reflect.DeepEqual(keys(got), want) {
		t.Fatalf("output files:\n got %v\nwant %v", keys(got), want)
	}
	if !strings.Contains(got["index.html"], `href="css/styles.min.css?v=`) || !strings.Contains(got["index.html"], `src="js/scripts.min.js?v=`) {
		t.Fatalf("index.html not cache-busted:\n%s", got["index.html"])
	}
	if strings.Contains(got["js/scripts.min.js"], "not javascript") {
		t.Fatalf("excluded lib script was bundled")
	}
	for _, dir := range []string{"images/content", "fonts"} {
		if info, err := os.Stat(filepath.Join(c.Output.Root(), dir)); err != nil || !info.IsDir() {
			t.Fatalf("skeleton directory %s missing", dir)
		}
	}

	// reset precedes every copy; cachebust comes last.
	order := res.ExecutionOrder
	if order[0] != TaskReset || order[len(order)-1] != TaskBuild {
		t.Fatalf("unexpected execution order %v", order)
	}
	idx := map[string]int{}
	for i, n := range order {
		idx[n] = i
	}
	for _, before := range []string{TaskSass, TaskJavaScript, TaskHTML, TaskImages} {
		if idx[before] > idx[TaskCachebust] {
			t.Fatalf("%s ran after cachebust: %v", before, order)
		}
	}
	if idx[TaskImages] > idx[TaskSass] || idx[TaskLintJS] > idx[TaskJavaScript] {
		t.Fatalf("prerequisite order violated: %v", order)
	}
	if len(rec.Snapshot()) == 0 {
		t.Fatalf("no trace events recorded")
	}
}

func TestBuild_IsReproducible(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	c := newTestContext(t, root, Options{})

	if _, err := c.Run(context.Background(), TaskBuild); err != nil {
		t.Fatalf("first build: %v", err)
	}
	first := tree(t, c.Output.Root())
	if _, err := c.Run(context.Background(), TaskBuild); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if second := tree(t, c.Output.Root()); !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild changed the output")
	}
}

func TestBuild_LintFailureAbortsAndKeepsOutput(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	c := newTestContext(t, root, Options{})
	if _, err := c.Run(context.Background(), TaskBuild); err != nil {
		t.Fatalf("build: %v", err)
	}
	before, _, err := c.Output.ReadFile(scriptOutput)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}

	writeSite(t, root, map[string]string{"src/js/app.js": "document.title = ;"})
	res, err := c.Run(context.Background(), TaskWatchJS)
	var te *dag.TaskError
	if !errors.As(err, &te) || te.Task != TaskLintJS {
		t.Fatalf("expected lint-js failure, got %v", err)
	}
	var xe *transform.TransformError
	if !errors.As(err, &xe) || xe.Stage != transform.StageLint {
		t.Fatalf("expected lint TransformError, got %v", err)
	}
	for _, skipped := range []string{TaskJavaScript, TaskCachebust, TaskWatchJS} {
		if res.FinalState[skipped] != dag.TaskSkipped {
			t.Fatalf("%s = %s, want SKIPPED", skipped, res.FinalState[skipped])
		}
	}
	after, _, err := c.Output.ReadFile(scriptOutput)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("failed rebuild modified the previous bundle")
	}
}

func TestBuild_SassFailureSkipsDownstream(t *testing.T) {
	root := t.TempDir()
	site := baseSite()
	site["src/sass/main.scss"] = "@error 'nope';"
	writeSite(t, root, site)
	c := newTestContext(t, root, Options{})

	res, err := c.Run(context.Background(), TaskBuild)
	var xe *transform.TransformError
	if !errors.As(err, &xe) || xe.Stage != transform.StageSass {
		t.Fatalf("expected sass TransformError, got %v", err)
	}
	if res.Failed != TaskSass {
		t.Fatalf("failed task = %q", res.Failed)
	}
	if res.FinalState[TaskCachebust] != dag.TaskSkipped || res.FinalState[TaskBuild] != dag.TaskSkipped {
		t.Fatalf("downstream tasks not skipped: %v", res.FinalState)
	}
	// javascript runs in parallel with sass and is awaited, not cancelled.
	if st := res.FinalState[TaskJavaScript]; st != dag.TaskCompleted && st != dag.TaskSkipped {
		t.Fatalf("javascript = %s", st)
	}
}

func TestWatchSass_FailureKeepsPreviousStylesheet(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	c := newTestContext(t, root, Options{})
	if _, err := c.Run(context.Background(), TaskBuild); err != nil {
		t.Fatalf("build: %v", err)
	}
	before, _, err := c.Output.ReadFile(styleOutput)
	if err != nil {
		t.Fatalf("read stylesheet: %v", err)
	}
	page, _, err := c.Output.ReadFile("index.html")
	if err != nil {
		t.Fatalf("read page: %v", err)
	}

	writeSite(t, root, map[string]string{"src/sass/main.scss": "@error 'broken';"})
	res, err := c.Run(context.Background(), TaskWatchSass)
	var xe *transform.TransformError
	if !errors.As(err, &xe) || xe.Stage != transform.StageSass {
		t.Fatalf("expected sass TransformError, got %v", err)
	}
	if res.FinalState[TaskCachebust] != dag.TaskSkipped {
		t.Fatalf("cachebust = %s, want SKIPPED", res.FinalState[TaskCachebust])
	}

	after, _, err := c.Output.ReadFile(styleOutput)
	if err != nil {
		t.Fatalf("read stylesheet: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("failed sass rebuild modified %s", styleOutput)
	}
	if p, _, _ := c.Output.ReadFile("index.html"); !bytes.Equal(page, p) {
		t.Fatalf("failed sass rebuild modified index.html")
	}
}

type memStore struct {
	keys []string
}

func (m *memStore) EnsureBucket(context.Context, string, string) error { return nil }

func (m *memStore) Put(_ context.Context, _, key string, body io.Reader, _ int64, _ string) error {
	if _, err := io.ReadAll(body); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	return nil
}

func TestPublish_UploadsBuiltTree(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	store := &memStore{}
	c := newTestContext(t, root, Options{Publisher: &publish.Publisher{
		Store:  store,
		Config: publish.Config{Bucket: "site", Prefix: "www", Concurrency: 1},
	}})
	if _, err := c.Run(context.Background(), TaskPublish); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sort.Strings(store.keys)
	if len(store.keys) != 9 || store.keys[0] != "www/css/styles.min.css" {
		t.Fatalf("uploaded keys = %v", store.keys)
	}
}

func TestContext_StartServesAndStops(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, baseSite())
	cfg := config.Default()
	cfg.Root = root
	cfg.Port = 0
	cfg.DesktopNotify = false
	c, err := New(Options{Config: cfg, Transforms: Transforms{Sass: fakeSass}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Run(context.Background(), TaskBuild); err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + c.Server.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "livereload.js") {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestOutputRootFollowsConfig(t *testing.T) {
	root := t.TempDir()
	c := newTestContext(t, root, Options{})
	if c.Output.Root() != filepath.Join(root, "dist") {
		t.Fatalf("output root = %s", c.Output.Root())
	}
	var _ *fsync.Output = c.Output
}
