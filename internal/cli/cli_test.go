package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type apiCall struct {
	method string
	path   string
	body   map[string]any
}

// fakePlatform serves feature sets of project "demo" and records mutations.
type fakePlatform struct {
	mu    sync.Mutex
	calls []apiCall
	// tagFailures is the number of tag mutations to fail with 500 before succeeding.
	tagFailures int
	// listQueries holds the query of every feature set list request.
	listQueries []url.Values
}

const featureSetsJSON = `[
 {"kind":"FeatureSet","metadata":{"name":"sales","project":"demo","tag":"latest","uid":"u1","labels":{"team":"ml"}},"spec":{"description":"daily"}},
 {"kind":"FeatureSet","metadata":{"name":"sales","project":"demo","tag":"v1","uid":"u0"},"spec":{}},
 {"kind":"FeatureSet","metadata":{"name":"orders","project":"demo","tag":"latest","uid":"u2"},"spec":{}}
]`

func (f *fakePlatform) handler(t *testing.T) http.HandlerFunc {
	var all []map[string]any
	if err := json.Unmarshal([]byte(featureSetsJSON), &all); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case r.Method == http.MethodGet && path == "/api/v1/projects/demo/feature-sets/*/tags":
			_, _ = io.WriteString(w, `{"tags":["latest","v1"]}`)
		case r.Method == http.MethodGet && path == "/api/v1/projects/demo/feature-sets":
			name := r.URL.Query().Get("name")
			f.mu.Lock()
			f.listQueries = append(f.listQueries, r.URL.Query())
			f.mu.Unlock()
			var out []map[string]any
			for _, o := range all {
				n := o["metadata"].(map[string]any)["name"].(string)
				switch {
				case name == "":
				case strings.HasPrefix(name, "~") && !strings.Contains(n, name[1:]):
					continue
				case !strings.HasPrefix(name, "~") && n != name:
					continue
				}
				out = append(out, o)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"feature_sets": out})
		case strings.HasPrefix(path, "/api/v1/projects/demo/"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.calls = append(f.calls, apiCall{method: r.Method, path: path, body: body})
			fail := strings.Contains(path, "/tags/") && f.tagFailures > 0
			if fail {
				f.tagFailures--
			}
			f.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"detail":"backend down"}`)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakePlatform) mutations() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func newPlatform(t *testing.T) (*fakePlatform, string) {
	t.Helper()
	t.Setenv("FSCONSOLE_CONFIG_DIR", t.TempDir())
	t.Setenv("FSCONSOLE_API_URL", "")
	t.Setenv("FSCONSOLE_PROJECT", "")
	t.Setenv("FSCONSOLE_FORMAT", "")
	t.Setenv("FSCONSOLE_TOKEN", "")
	f := &fakePlatform{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()
	cmd := NewRootCmd()
	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

func mustRun(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err != nil {
		t.Fatalf("fsconsole %v failed: %v\nstderr:\n%s", args, err, stderr)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout: %v\nstdout:\n%s", err, stdout)
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("envelope has no data key: %s", stdout)
	}
	return env
}

func rowNames(t *testing.T, env map[string]any) []string {
	t.Helper()
	rows, ok := env["data"].([]any)
	if !ok {
		t.Fatalf("data is not a list: %#v", env["data"])
	}
	var out []string
	for _, r := range rows {
		it := r.(map[string]any)["item"].(map[string]any)
		out = append(out, it["name"].(string)+":"+it["tag"].(string))
	}
	return out
}

func TestList_LatestByDefault(t *testing.T) {
	_, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "list", "feature-set")

	if got := strings.Join(rowNames(t, env), ","); got != "sales:latest,orders:latest" {
		t.Fatalf("rows = %q", got)
	}
	meta := env["meta"].(map[string]any)
	if meta["tag"] != "latest" || meta["groupBy"] != "none" || meta["count"].(float64) != 2 {
		t.Fatalf("meta = %#v", meta)
	}
	if opts := meta["tagOptions"].([]any); len(opts) != 2 {
		t.Fatalf("tagOptions = %v", opts)
	}
}

func TestList_AllTagsGroupsByName(t *testing.T) {
	_, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "list", "feature-set", "--tag", "*", "--group-by", "none")

	if got := strings.Join(rowNames(t, env), ","); got != "sales:latest,orders:latest" {
		t.Fatalf("rows = %q, want one row per name", got)
	}
	if env["meta"].(map[string]any)["groupBy"] != "name" {
		t.Fatalf("all tags must force groupBy=name")
	}
	for _, r := range env["data"].([]any) {
		if r.(map[string]any)["expandable"] != true {
			t.Fatalf("grouped row not expandable: %v", r)
		}
	}
}

func TestVersions_ListsEveryVersionOfOneName(t *testing.T) {
	_, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "versions", "feature-set", "sales")

	if got := strings.Join(rowNames(t, env), ","); got != "sales:latest,sales:v1" {
		t.Fatalf("versions = %q", got)
	}
	if env["meta"].(map[string]any)["state"] != "loaded" {
		t.Fatalf("meta = %v", env["meta"])
	}
}

func TestShow_NotFoundPointsBackToCollection(t *testing.T) {
	_, url := newPlatform(t)
	_, stderr, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "show", "feature-set", "missing"})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(string(stderr), "/projects/demo/feature-store/feature-sets") {
		t.Fatalf("stderr = %q, want the collection route", stderr)
	}
}

func TestShow_RawYAML(t *testing.T) {
	_, url := newPlatform(t)
	stdout, stderr, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "--format", "yaml", "show", "feature-set", "sales", "--tag", "v1", "--raw"})
	if err != nil {
		t.Fatalf("show: %v\n%s", err, stderr)
	}
	out := string(stdout)
	if !strings.Contains(out, "kind: FeatureSet") || !strings.Contains(out, "uid: u0") {
		t.Fatalf("yaml = %s", out)
	}
}

func TestTagsSet_RetriesAndRecordsActivity(t *testing.T) {
	f, url := newPlatform(t)
	f.tagFailures = 1

	_, stderr, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "tags", "set", "feature-set", "sales", "--tag", "latest", "--to", "prod"})
	if err == nil {
		t.Fatalf("expected the first attempt to fail")
	}
	if !strings.Contains(string(stderr), "500 Failed to update the tag") {
		t.Fatalf("stderr = %q", stderr)
	}

	f.tagFailures = 1
	env := mustRun(t, "--api-url", url, "--project", "demo", "tags", "set", "feature-set", "sales", "--tag", "latest", "--to", "prod", "--retries", "2")
	data := env["data"].(map[string]any)
	if data["op"] != "edit" || data["oldTag"] != "latest" || data["status"].(float64) != 200 {
		t.Fatalf("outcome = %#v", data)
	}
	setMeta := env["meta"].(map[string]any)
	notes := setMeta["notifications"].([]any)
	if setMeta["attempts"].(float64) != 2 || len(notes) != 1 || notes[0].(map[string]any)["status"].(float64) != 200 {
		t.Fatalf("meta = %#v", setMeta)
	}

	calls := f.mutations()
	if len(calls) != 3 {
		t.Fatalf("mutations = %d, want 3", len(calls))
	}
	for _, c := range calls {
		if c.method != http.MethodPut || c.path != "/api/v1/projects/demo/tags/prod" || c.body["old_tag"] != "latest" {
			t.Fatalf("unexpected mutation %+v", c)
		}
	}

	ev := mustRun(t, "--project", "demo", "events", "list")
	meta := ev["meta"].(map[string]any)
	if meta["count"].(float64) != 3 || meta["failed"].(float64) != 2 {
		t.Fatalf("events meta = %#v", meta)
	}
	newest := ev["data"].([]any)[0].(map[string]any)
	if newest["type"] != "tag.edit" || newest["status"].(float64) != 200 {
		t.Fatalf("newest event = %#v", newest)
	}
}

func TestTagsSet_UntaggedNeedsUID(t *testing.T) {
	_, url := newPlatform(t)
	if _, _, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "tags", "set", "feature-set", "sales", "--to", "prod"}); err == nil {
		t.Fatalf("expected an error without --tag or --uid")
	}
}

func TestMetaSet_PatchesDescriptionAndLabels(t *testing.T) {
	f, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "meta", "set", "feature-set", "sales",
		"--description", "hourly", "--label", "team=data", "--label", "tier=gold")

	item := env["data"].(map[string]any)["item"].(map[string]any)
	if item["description"] != "hourly" {
		t.Fatalf("item = %#v", item)
	}
	calls := f.mutations()
	if len(calls) != 1 || calls[0].method != http.MethodPatch || calls[0].path != "/api/v1/projects/demo/feature-sets/sales/references/latest" {
		t.Fatalf("mutations = %+v", calls)
	}
	labels := calls[0].body["metadata"].(map[string]any)["labels"].(map[string]any)
	if labels["team"] != "data" || labels["tier"] != "gold" {
		t.Fatalf("labels = %#v", labels)
	}
	if spec := calls[0].body["spec"].(map[string]any); spec["description"] != "hourly" {
		t.Fatalf("spec = %#v", spec)
	}
}

func TestMetaSet_NothingToChange(t *testing.T) {
	_, url := newPlatform(t)
	if _, _, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "meta", "set", "feature-set", "sales"}); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestConfig_SetThenShowRedactsToken(t *testing.T) {
	_, url := newPlatform(t)
	mustRun(t, "config", "set", "apiUrl", url+"/")
	mustRun(t, "config", "set", "project", "demo")
	mustRun(t, "config", "set", "token", "secret")

	env := mustRun(t, "config", "show")
	data := env["data"].(map[string]any)
	if data["apiUrl"] != url || data["project"] != "demo" || data["token"] != "***" {
		t.Fatalf("config = %#v", data)
	}

	// The saved config is enough to reach the platform.
	listed := mustRun(t, "list", "feature-set")
	if len(rowNames(t, listed)) != 2 {
		t.Fatalf("list via config failed: %#v", listed)
	}
}

func TestConfig_UnknownKey(t *testing.T) {
	newPlatform(t)
	if _, _, err := runCLI(t, []string{"config", "set", "nope", "x"}); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestUnknownKindFails(t *testing.T) {
	_, url := newPlatform(t)
	_, stderr, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "list", "widgets"})
	if err == nil || !strings.Contains(string(stderr), "feature-set") {
		t.Fatalf("err = %v, stderr = %q", err, stderr)
	}
}

func TestDoctor_ReachableAPI(t *testing.T) {
	_, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "doctor", "--fail")
	meta := env["meta"].(map[string]any)
	if meta["hasErrors"] != false || meta["issues"].(float64) != 0 {
		t.Fatalf("meta = %#v, data = %#v", meta, env["data"])
	}
}

func TestDoctor_ReportsMissingSetupAndUnknownProject(t *testing.T) {
	newPlatform(t)
	env := mustRun(t, "doctor")
	issues := env["data"].(map[string]any)["issues"].([]any)
	var codes []string
	for _, it := range issues {
		codes = append(codes, it.(map[string]any)["code"].(string))
	}
	if strings.Join(codes, ",") != "api_url_missing,project_missing" {
		t.Fatalf("codes = %v", codes)
	}

	_, url := newPlatform(t)
	_, _, err := runCLI(t, []string{"--api-url", url, "--project", "other", "doctor", "--fail"})
	if err == nil {
		t.Fatalf("expected --fail to surface the unreachable project")
	}
}

func TestDocs_ListsTopicsAndPrintsRaw(t *testing.T) {
	newPlatform(t)
	env := mustRun(t, "docs")
	topics := env["data"].(map[string]any)["topics"].([]any)
	if len(topics) == 0 {
		t.Fatalf("no topics")
	}

	stdout, _, err := runCLI(t, []string{"docs", "tags", "--raw"})
	if err != nil || !strings.HasPrefix(string(stdout), "#") {
		t.Fatalf("docs tags --raw: err=%v out=%q", err, stdout)
	}
	if _, _, err := runCLI(t, []string{"docs", "nope"}); err == nil {
		t.Fatalf("expected unknown topic error")
	}
}

func TestTagsList(t *testing.T) {
	_, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "tags", "list", "feature-set")
	tags := env["data"].([]any)
	if len(tags) != 2 || tags[0] != "latest" || tags[1] != "v1" {
		t.Fatalf("tags = %#v", tags)
	}
}

func TestTagsSet_RefusesTagHeldByAnotherVersion(t *testing.T) {
	f, url := newPlatform(t)
	_, stderr, err := runCLI(t, []string{"--api-url", url, "--project", "demo", "tags", "set", "feature-set", "sales", "--tag", "latest", "--to", "v1"})
	if err == nil || !strings.Contains(string(stderr), "already has a version tagged") {
		t.Fatalf("err = %v, stderr = %q", err, stderr)
	}
	if calls := f.mutations(); len(calls) != 0 {
		t.Fatalf("mutations = %+v, want none", calls)
	}
}

func TestList_PassesLabelAndIterFilters(t *testing.T) {
	f, url := newPlatform(t)
	env := mustRun(t, "--api-url", url, "--project", "demo", "list", "feature-set", "--name", "sal", "--labels", "team=ml", "--iter", "2", "--group-by", "none")
	if got := strings.Join(rowNames(t, env), ","); got != "sales:latest" {
		t.Fatalf("rows = %s", got)
	}
	f.mu.Lock()
	q := f.listQueries[len(f.listQueries)-1]
	f.mu.Unlock()
	if q.Get("name") != "~sal" || q.Get("label") != "team=ml" || q.Get("iter") != "2" || q.Get("tag") != "latest" {
		t.Fatalf("query = %v", q)
	}
	if meta := env["meta"].(map[string]any); meta["groupBy"] != "none" {
		t.Fatalf("meta = %#v", meta)
	}
}
