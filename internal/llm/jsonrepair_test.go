package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type planStub struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

func TestParseJSON_Clean(t *testing.T) {
	var got planStub
	if err := ParseJSON(`{"name":"smoke","steps":["a","b"]}`, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "smoke" || len(got.Steps) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestParseJSON_Fenced(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"name\":\"fenced\",\"steps\":[]}\n```\nLet me know."
	var got planStub
	if err := ParseJSON(raw, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "fenced" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestParseJSON_LineComments(t *testing.T) {
	raw := "{\n// the test name\n\"name\":\"commented\",\n\"steps\":[]\n}"
	var got planStub
	if err := ParseJSON(raw, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "commented" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestParseJSON_TrailingCommas(t *testing.T) {
	raw := `{"name":"trailing","steps":["a","b",],}`
	var got planStub
	if err := ParseJSON(raw, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Errorf("Steps = %v", got.Steps)
	}
}

func TestParseJSON_BareControlChars(t *testing.T) {
	raw := "{\"name\":\"line\none\",\"steps\":[]}"
	var got planStub
	if err := ParseJSON(raw, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "line\none" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestParseJSON_SurroundingProse(t *testing.T) {
	raw := `Sure! The plan is {"name":"prose","steps":["a"]} and that covers it.`
	var got planStub
	if err := ParseJSON(raw, &got, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "prose" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestParseJSON_FailureWritesDebugBundle(t *testing.T) {
	dir := t.TempDir()
	var got planStub
	err := ParseJSON("this is not json at all", &got, dir, nil)
	if err == nil {
		t.Fatal("expected parse error")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("reading debug dir: %v", readErr)
	}
	var foundRaw bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_raw.txt") {
			foundRaw = true
			data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if string(data) != "this is not json at all" {
				t.Errorf("raw dump = %q", data)
			}
		}
	}
	if !foundRaw {
		t.Error("expected a raw dump in the debug dir")
	}
}

func TestExtractOutermostBraces_NestedAndStrings(t *testing.T) {
	in := `noise {"a":{"b":"} not a close"},"c":[1,2]} trailing`
	got := extractOutermostBraces(in)
	want := `{"a":{"b":"} not a close"},"c":[1,2]}`
	if got != want {
		t.Errorf("extractOutermostBraces() = %q, want %q", got, want)
	}
}
