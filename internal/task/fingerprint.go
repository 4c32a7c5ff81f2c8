package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/me/wdlrun/pkg/wdl"
)

// Fingerprint derives the cache key for one invocation: a sha256 over the
// task identity, the fully resolved input values in canonical JSON, and the
// container image. Equal invocations yield equal keys across runs and hosts.
func Fingerprint(t *wdl.Task, inputs map[string]wdl.Value, image string) string {
	var b strings.Builder
	b.WriteString(`{"image":`)
	b.WriteString(jsonString(image))
	b.WriteString(`,"inputs":{`)

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(jsonString(name))
		b.WriteString(":")
		b.WriteString(wdl.Canonical(inputs[name]))
	}

	b.WriteString(`},"task":`)
	b.WriteString(jsonString(t.Name))
	b.WriteString(`,"version":`)
	b.WriteString(jsonString(t.Version))
	b.WriteString("}")

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
