// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package helmrel

import (
	"bytes"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"
)

// RenderFile renders one template from fsys and returns the raw bytes.
// Templates use << >> delimiters so they never collide with chart template
// syntax, and the env functions are removed so a payload template cannot
// read the process environment.
func RenderFile(fsys fs.FS, path string, data any) ([]byte, error) {
	tpl, err := template.New(filepath.Base(path)).
		Delims("<<", ">>").
		Funcs(funcMap()).
		ParseFS(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// RenderValues renders one values template from fsys and parses the result
// into the map the Helm SDK expects.
func RenderValues(fsys fs.FS, path string, data any) (map[string]any, error) {
	rendered, err := RenderFile(fsys, path, data)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(rendered, &values); err != nil {
		return nil, fmt.Errorf("failed to parse rendered values %s: %w", path, err)
	}
	return values, nil
}

func funcMap() template.FuncMap {
	f := sprig.TxtFuncMap()
	delete(f, "env")
	delete(f, "expandenv")

	extra := template.FuncMap{
		"toYaml": toYAML,
	}
	maps.Copy(f, extra)

	return f
}

func toYAML(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSuffix(data, []byte("\n")))
}
