package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// engines converts a browser→version map into esbuild engines, sorted by name.
func engines(targets map[string]string) ([]api.Engine, error) {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]api.Engine, 0, len(names))
	for _, name := range names {
		en, ok := engineNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown browser target %q", name)
		}
		out = append(out, api.Engine{Name: en, Version: targets[name]})
	}
	return out, nil
}

var esTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func esTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := esTargets[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown language target %q", name)
	}
	return t, nil
}

// formatMessages renders esbuild diagnostics as "file:line:col: text" lines.
func formatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location == nil {
			lines = append(lines, m.Text)
			continue
		}
		loc := m.Location
		lines = append(lines, loc.File+":"+strconv.Itoa(loc.Line)+":"+strconv.Itoa(loc.Column)+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

func sourcesContent(embed bool) api.SourcesContent {
	if embed {
		return api.SourcesContentInclude
	}
	return api.SourcesContentExclude
}
