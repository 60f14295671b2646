package publish

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"sitepipe/internal/fsync"
)

type object struct {
	data        string
	contentType string
}

type fakeStore struct {
	mu      sync.Mutex
	buckets []string
	objects map[string]object
	failKey string
}

func (s *fakeStore) EnsureBucket(_ context.Context, bucket, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = append(s.buckets, bucket)
	return nil
}

func (s *fakeStore) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if key == s.failKey {
		return errors.New("access denied")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string]object{}
	}
	s.objects[bucket+"/"+key] = object{data: string(data), contentType: contentType}
	return nil
}

func TestPublisher_UploadsTree(t *testing.T) {
	store := &fakeStore{}
	p := &Publisher{Store: store, Config: Config{Bucket: "site", Prefix: "/v2/", Region: "us-east-1"}}
	n, err := p.Publish(context.Background(), []fsync.File{
		{Path: "index.html", Data: []byte("<html>")},
		{Path: "css/styles.min.css", Data: []byte("a{}")},
		{Path: "js/scripts.min.js.map", Data: []byte("{}")},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 3 || len(store.buckets) != 1 || store.buckets[0] != "site" {
		t.Fatalf("n=%d buckets=%v", n, store.buckets)
	}
	keys := make([]string, 0, len(store.objects))
	for k := range store.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"site/v2/css/styles.min.css", "site/v2/index.html", "site/v2/js/scripts.min.js.map"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v", keys)
	}
	if ct := store.objects["site/v2/index.html"].contentType; !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("index.html content type %q", ct)
	}
}

func TestPublisher_FailureIsReported(t *testing.T) {
	store := &fakeStore{failKey: "index.html"}
	p := &Publisher{Store: store, Config: Config{Bucket: "site"}}
	_, err := p.Publish(context.Background(), []fsync.File{{Path: "index.html", Data: []byte("x")}})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected put failure, got %v", err)
	}
}

func TestObjectKeyAndContentType(t *testing.T) {
	cases := []struct{ prefix, name, want string }{
		{"", "index.html", "index.html"},
		{"site", "/css/a.css", "site/css/a.css"},
		{"/a/b/", "js//x.js", "a/b/js/x.js"},
	}
	for _, c := range cases {
		if got := ObjectKey(c.prefix, c.name); got != c.want {
			t.Fatalf("ObjectKey(%q, %q) = %q, want %q", c.prefix, c.name, got, c.want)
		}
	}
	if ContentType("fonts/a.woff2") != "font/woff2" || ContentType("blob.unknownext") != "application/octet-stream" {
		t.Fatalf("unexpected content types")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "site",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}
	invalid = valid
	invalid.Bucket = ""
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing bucket")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SITEPIPE_PUBLISH_ENDPOINT", "s3.example.com")
	t.Setenv("SITEPIPE_PUBLISH_ACCESS_KEY", "key")
	t.Setenv("SITEPIPE_PUBLISH_SECRET_KEY", "secret")
	t.Setenv("SITEPIPE_PUBLISH_BUCKET", "www")
	t.Setenv("SITEPIPE_PUBLISH_USE_SSL", "false")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Endpoint != "s3.example.com" || cfg.Bucket != "www" || cfg.UseSSL || cfg.Region != "us-east-1" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("SITEPIPE_PUBLISH_BUCKET", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected validation error for empty bucket")
	}
}
