package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/wdlrun/pkg/wdl"
)

// LoadInputs reads a workflow inputs file and decodes it against the
// workflow's declared input types. Keys are fully qualified
// ("workflowName.inputName"); the returned map is keyed by plain input name.
// Unknown keys and missing required inputs are errors; inputs with a default
// expression may be omitted.
func LoadInputs(path string, wf *wdl.Workflow) (map[string]wdl.Value, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read inputs: %w", err)
		}
		if raw, err = decodeInputsFile(data, isYAML(path)); err != nil {
			return nil, fmt.Errorf("inputs %s: %w", path, err)
		}
	}
	return DecodeInputs(raw, wf)
}

func decodeInputsFile(data []byte, asYAML bool) (map[string]any, error) {
	out := map[string]any{}
	if asYAML {
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

// DecodeInputs matches fully-qualified raw inputs against workflow input
// declarations.
func DecodeInputs(raw map[string]any, wf *wdl.Workflow) (map[string]wdl.Value, error) {
	decls := make(map[string]*wdl.Decl, len(wf.Inputs))
	for _, in := range wf.Inputs {
		decls[in.Name] = in
	}

	out := make(map[string]wdl.Value, len(raw))
	prefix := wf.Name + "."
	for key, rv := range raw {
		if !strings.HasPrefix(key, prefix) {
			return nil, fmt.Errorf("input %q does not belong to workflow %q", key, wf.Name)
		}
		name := strings.TrimPrefix(key, prefix)
		decl, ok := decls[name]
		if !ok {
			return nil, fmt.Errorf("unknown input %q", key)
		}
		v, err := wdl.DecodeJSON(rv, decl.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		out[name] = v
	}

	for name, decl := range decls {
		if _, ok := out[name]; ok || decl.Expr != nil {
			continue
		}
		if decl.Type.Optional {
			out[name] = wdl.None{}
			continue
		}
		return nil, fmt.Errorf("missing required input %q", prefix+name)
	}
	return out, nil
}
