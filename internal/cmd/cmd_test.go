package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/config"
	"github.com/Iron-Ham/thumbcache/internal/logging"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer/rendertest"
)

const testManifest = `defaults:
  style: round
  chain_style: ball
entities:
  - id: k1
    name: Brass Fox
    body_image: art/k1.png
  - id: k2
    variant: gift
    body_image: art/k2.png
  - id: k3
    body_image: art/k3.png
  - id: k4
    body_image: art/k4.png
    withheld: true
`

type testEnv struct {
	app     *app
	fs      afero.Fs
	factory *rendertest.Factory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Cache.Root = "/cache"
	cfg.Cache.Watch = false
	cfg.Capture.PollIntervalMs = 2
	cfg.Capture.RenderTimeoutMs = 500
	cfg.Capture.StabilizationDelayMs = 1
	cfg.Retry.BatchPauseMs = 5
	cfg.Sweep.Enabled = false

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/work/keyrings.yaml", []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	factory := rendertest.NewFactory(time.Millisecond)
	a, err := newApp(cfg, withFs(fs), withLogger(logging.NopLogger()), withRenderers(factory))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.close)
	return &testEnv{app: a, fs: fs, factory: factory}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "thumbcache" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "thumbcache")
	}

	expectedCmds := []string{"render", "retry", "status", "index", "remove", "serve", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestRender(t *testing.T) {
	env := newTestEnv(t)
	env.factory.Script("/work/art/k3.png", rendertest.Blank)

	var out bytes.Buffer
	err := env.app.render(&out, "/work/keyrings.yaml", "", false)
	if err == nil || !strings.Contains(err.Error(), "1 of 4") {
		t.Errorf("render() error = %v, want 1 of 4 missing", err)
	}

	got := out.String()
	for _, want := range []string{"k1", "rendered", "k3", "failed (1/3 attempts)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if !env.app.cache.Exists("k2", rendercache.Gift) {
		t.Error("gift variant not cached")
	}
	index := env.app.cache.LoadIndex()
	if len(index) != 1 || index[0].ID != "k1" || index[0].Name != "Brass Fox" {
		t.Errorf("index = %+v, want only k1", index)
	}
}

func TestRender_PatternAndForce(t *testing.T) {
	env := newTestEnv(t)

	var out bytes.Buffer
	if err := env.app.render(&out, "/work/keyrings.yaml", "k1", false); err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if env.factory.TotalOpens() != 1 {
		t.Fatalf("TotalOpens() = %d, want 1", env.factory.TotalOpens())
	}

	out.Reset()
	if err := env.app.render(&out, "/work/keyrings.yaml", "k1", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "cached") || env.factory.TotalOpens() != 1 {
		t.Errorf("second render re-rendered a cached entity: %s", out.String())
	}

	if err := env.app.render(&out, "/work/keyrings.yaml", "k1", true); err != nil {
		t.Fatal(err)
	}
	if env.factory.TotalOpens() != 2 {
		t.Errorf("TotalOpens() after --force = %d, want 2", env.factory.TotalOpens())
	}

	out.Reset()
	if err := env.app.render(&out, "/work/keyrings.yaml", "nothing-*", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No matching entities") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRender_NoManifest(t *testing.T) {
	env := newTestEnv(t)
	if err := env.app.render(&bytes.Buffer{}, "", "", false); err == nil {
		t.Error("render() without a manifest succeeded")
	}
}

func TestRetry(t *testing.T) {
	env := newTestEnv(t)
	env.factory.Script("/work/art/k3.png", rendertest.Blank, rendertest.Valid)

	_ = env.app.render(&bytes.Buffer{}, "/work/keyrings.yaml", "", false)

	var out bytes.Buffer
	if err := env.app.retry(context.Background(), &out, "/work/keyrings.yaml", ""); err != nil {
		t.Fatalf("retry() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Candidates: 1") || !strings.Contains(got, "Skipped:    3") {
		t.Errorf("retry output = %q", got)
	}
	if strings.Contains(got, "Still missing") {
		t.Errorf("retry left entities missing: %q", got)
	}
	if !env.app.cache.Exists("k3", rendercache.Thumbnail) {
		t.Error("k3 not cached after retry")
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	_ = env.app.render(&bytes.Buffer{}, "/work/keyrings.yaml", "", false)

	var out bytes.Buffer
	if err := env.app.status(&out, false); err != nil {
		t.Fatalf("status() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"Render cache", "k1", "gift", "Not in widget index: k4"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}

	out.Reset()
	if err := env.app.status(&out, true); err != nil {
		t.Fatal(err)
	}
	var st cacheStatus
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("status --json is not JSON: %v", err)
	}
	if len(st.Entries) != 4 || st.Indexed != 2 {
		t.Errorf("status = %d entries, %d indexed; want 4 and 2", len(st.Entries), st.Indexed)
	}
}

func TestStatus_Empty(t *testing.T) {
	env := newTestEnv(t)
	var out bytes.Buffer
	if err := env.app.status(&out, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No cached images") {
		t.Errorf("status output = %q", out.String())
	}
}

func TestIndexSyncAndRemove(t *testing.T) {
	env := newTestEnv(t)

	png, err := rendertest.EncodePNG(rendertest.Filled(300, 400))
	if err != nil {
		t.Fatal(err)
	}
	_ = afero.WriteFile(env.fs, "/work/ext.png", png, 0o644)

	small, _ := rendertest.EncodePNG(rendertest.Filled(10, 10))
	_ = afero.WriteFile(env.fs, "/work/small.png", small, 0o644)

	var out bytes.Buffer
	if err := env.app.syncFile(&out, "ext", "External", "/work/ext.png"); err != nil {
		t.Fatalf("syncFile() error = %v", err)
	}
	if !strings.Contains(out.String(), "keyrings/ext.png") {
		t.Errorf("syncFile output = %q", out.String())
	}
	if err := env.app.syncFile(&out, "small", "", "/work/small.png"); err == nil {
		t.Error("syncFile() accepted an image below the minimum size")
	}
	if err := env.app.syncFile(&out, "ext_gift", "", "/work/ext.png"); err == nil {
		t.Error("syncFile() accepted an id that collides with a gift variant file")
	}

	out.Reset()
	if err := env.app.printIndex(&out); err != nil {
		t.Fatal(err)
	}
	var records []rendercache.MetadataRecord
	if err := json.Unmarshal(out.Bytes(), &records); err != nil {
		t.Fatalf("index output is not JSON: %v", err)
	}
	if len(records) != 1 || records[0].ID != "ext" {
		t.Fatalf("index = %+v, want [ext]", records)
	}

	if err := env.app.remove(&out, []string{"ext"}); err != nil {
		t.Fatal(err)
	}
	if len(env.app.cache.LoadIndex()) != 0 || env.app.cache.Exists("ext", rendercache.Thumbnail) {
		t.Error("remove left the entity cached or indexed")
	}
}

func TestServe(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := env.app.serve(ctx, &out, "", false); err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Serving cache at /cache/keyrings") || !strings.Contains(got, "Shutting down") {
		t.Errorf("serve output = %q", got)
	}
}

func TestShowConfig(t *testing.T) {
	var out bytes.Buffer
	if err := showConfig(&out, config.Default(), ""); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"(none - using defaults)", "poll_interval_ms: 150", "batch_size: 5", "@every 10m"} {
		if !strings.Contains(got, want) {
			t.Errorf("config output missing %q:\n%s", want, got)
		}
	}
}

func TestDisplayLogs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logs := strings.Join([]string{
		`{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"capture succeeded","entity_id":"k1"}`,
		`{"time":"2026-03-01T11:30:00Z","level":"WARN","msg":"capture failed","entity_id":"k2","kind":"blank"}`,
		`{"time":"2026-03-01T11:45:00Z","level":"DEBUG","msg":"capture started","entity_id":"k2"}`,
		`not json`,
		``,
	}, "\n")

	tests := []struct {
		name          string
		level, since  string
		grep, entity  string
		tail          int
		want, wantNot []string
	}{
		{name: "all", want: []string{"capture succeeded", "capture failed", "capture started", "not json"}},
		{name: "level", level: "warn", want: []string{"capture failed", "kind=", "not json"}, wantNot: []string{"capture succeeded", "capture started"}},
		{name: "since", since: "1h", want: []string{"capture failed"}, wantNot: []string{"capture succeeded"}},
		{name: "entity", entity: "k1", want: []string{"capture succeeded"}, wantNot: []string{"capture failed"}},
		{name: "grep extra field", grep: "^capture failed blank$", want: []string{"capture failed"}, wantNot: []string{"capture started"}},
		{name: "tail", tail: 1, want: []string{"not json"}, wantNot: []string{"capture failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := newLogFilter(tt.level, tt.since, tt.grep, tt.entity, now)
			if err != nil {
				t.Fatal(err)
			}
			var out bytes.Buffer
			if err := displayLogs(&out, strings.NewReader(logs), tt.tail, f); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(out.String(), w) {
					t.Errorf("output contains %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestNewLogFilter_Invalid(t *testing.T) {
	now := time.Now()
	for _, args := range [][3]string{
		{"loud", "", ""},
		{"", "yesterday", ""},
		{"", "", "("},
	} {
		if _, err := newLogFilter(args[0], args[1], args[2], "", now); err == nil {
			t.Errorf("newLogFilter(%q) succeeded", args)
		}
	}
}

func TestFitColumn(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"k1", 24, "k1"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a-very-long-entity-identifier", 10, "a-very-..."},
	}
	for _, tt := range tests {
		if got := fitColumn(tt.in, tt.width); got != tt.want {
			t.Errorf("fitColumn(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
