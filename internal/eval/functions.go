package eval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/me/wdlrun/pkg/wdl"
)

type function struct {
	minArgs, maxArgs int
	impl             func(ev *Evaluator, args []wdl.Value) (wdl.Value, error)
}

// stdlib returns the fixed standard-library function table. File-producing
// functions construct path values only; the read_* family, stdout/stderr,
// glob and size require a task scope and are rejected outside one.
func stdlib() map[string]function {
	return map[string]function{
		"floor":        {1, 1, fnFloor},
		"ceil":         {1, 1, fnCeil},
		"round":        {1, 1, fnRound},
		"min":          {2, 2, fnMin},
		"max":          {2, 2, fnMax},
		"length":       {1, 1, fnLength},
		"defined":      {1, 1, fnDefined},
		"select_first": {1, 2, fnSelectFirst},
		"select_all":   {1, 1, fnSelectAll},
		"flatten":      {1, 1, fnFlatten},
		"zip":          {2, 2, fnZip},
		"unzip":        {1, 1, fnUnzip},
		"cross":        {2, 2, fnCross},
		"chunk":        {2, 2, fnChunk},
		"range":        {1, 1, fnRange},
		"transpose":    {1, 1, fnTranspose},
		"prefix":       {2, 2, fnPrefix},
		"suffix":       {2, 2, fnSuffix},
		"sep":          {2, 2, fnSep},
		"basename":     {1, 2, fnBasename},
		"sub":          {3, 3, fnSub},
		"keys":         {1, 1, fnKeys},
		"values":       {1, 1, fnValues},
		"as_pairs":     {1, 1, fnAsPairs},
		"as_map":       {1, 1, fnAsMap},
		"stdout":       {0, 0, fnStdout},
		"stderr":       {0, 0, fnStderr},
		"glob":         {1, 1, fnGlob},
		"size":         {1, 2, fnSize},
		"read_lines":   {1, 1, fnReadLines},
		"read_string":  {1, 1, fnReadString},
		"read_int":     {1, 1, fnReadInt},
		"read_float":   {1, 1, fnReadFloat},
		"read_boolean": {1, 1, fnReadBoolean},
		"read_json":    {1, 1, fnReadJSON},
	}
}

func argArray(name string, v wdl.Value) (wdl.Array, error) {
	a, ok := v.(wdl.Array)
	if !ok {
		return wdl.Array{}, &FunctionError{Func: name, Msg: fmt.Sprintf("argument is %s, not an array", v.Type())}
	}
	return a, nil
}

func argInt(name string, v wdl.Value) (int64, error) {
	i, ok := v.(wdl.Int)
	if !ok {
		return 0, &FunctionError{Func: name, Msg: fmt.Sprintf("argument is %s, not Int", v.Type())}
	}
	return int64(i), nil
}

func argString(name string, v wdl.Value) (string, error) {
	s, ok := stringOperand(v)
	if !ok {
		return "", &FunctionError{Func: name, Msg: fmt.Sprintf("argument is %s, not String", v.Type())}
	}
	return s, nil
}

func fnFloor(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	f, ok := toFloat(args[0])
	if !ok {
		return nil, &FunctionError{Func: "floor", Msg: "argument is not numeric"}
	}
	return wdl.Int(math.Floor(f)), nil
}

func fnCeil(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	f, ok := toFloat(args[0])
	if !ok {
		return nil, &FunctionError{Func: "ceil", Msg: "argument is not numeric"}
	}
	return wdl.Int(math.Ceil(f)), nil
}

func fnRound(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	f, ok := toFloat(args[0])
	if !ok {
		return nil, &FunctionError{Func: "round", Msg: "argument is not numeric"}
	}
	return wdl.Int(math.Round(f)), nil
}

func fnMin(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	return minMax("min", args, func(a, b float64) bool { return a < b })
}

func fnMax(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	return minMax("max", args, func(a, b float64) bool { return a > b })
}

func minMax(name string, args []wdl.Value, pick func(a, b float64) bool) (wdl.Value, error) {
	af, aok := toFloat(args[0])
	bf, bok := toFloat(args[1])
	if !aok || !bok {
		return nil, &FunctionError{Func: name, Msg: "arguments must be numeric"}
	}
	chosen := args[1]
	if pick(af, bf) {
		chosen = args[0]
	}
	// Result is Float if either argument is.
	_, ai := args[0].(wdl.Int)
	_, bi := args[1].(wdl.Int)
	if !(ai && bi) {
		f, _ := toFloat(chosen)
		return wdl.Float(f), nil
	}
	return chosen, nil
}

func fnLength(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	switch v := args[0].(type) {
	case wdl.Array:
		return wdl.Int(len(v.Items)), nil
	case wdl.Map:
		return wdl.Int(len(v.Entries)), nil
	case wdl.String:
		return wdl.Int(len(v)), nil
	}
	return nil, &FunctionError{Func: "length", Msg: fmt.Sprintf("argument is %s, not Array, Map or String", args[0].Type())}
}

func fnDefined(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	return wdl.Boolean(!wdl.IsNone(args[0])), nil
}

// select_first returns the left-most non-None element. Without a default, an
// empty array or an all-None array is an error.
func fnSelectFirst(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("select_first", args[0])
	if err != nil {
		return nil, err
	}
	if len(arr.Items) == 0 {
		return nil, &FunctionError{Func: "select_first", Msg: "array is empty"}
	}
	for _, v := range arr.Items {
		if !wdl.IsNone(v) {
			return v, nil
		}
	}
	if len(args) > 1 {
		return args[1], nil
	}
	return nil, &FunctionError{Func: "select_first", Msg: "array contains only `None` values"}
}

func fnSelectAll(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("select_all", args[0])
	if err != nil {
		return nil, err
	}
	items := make([]wdl.Value, 0, len(arr.Items))
	for _, v := range arr.Items {
		if !wdl.IsNone(v) {
			items = append(items, v)
		}
	}
	return wdl.Array{Elem: arr.Elem.AsRequired(), Items: items}, nil
}

func fnFlatten(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("flatten", args[0])
	if err != nil {
		return nil, err
	}
	elem := wdl.StringType()
	if arr.Elem.Kind == wdl.TypeArray && arr.Elem.Elem != nil {
		elem = *arr.Elem.Elem
	}
	var items []wdl.Value
	for _, v := range arr.Items {
		inner, ok := v.(wdl.Array)
		if !ok {
			return nil, &FunctionError{Func: "flatten", Msg: "argument must be an array of arrays"}
		}
		items = append(items, inner.Items...)
	}
	return wdl.Array{Elem: elem, Items: items}, nil
}

func fnZip(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	a, err := argArray("zip", args[0])
	if err != nil {
		return nil, err
	}
	b, err := argArray("zip", args[1])
	if err != nil {
		return nil, err
	}
	if len(a.Items) != len(b.Items) {
		return nil, &FunctionError{Func: "zip", Msg: fmt.Sprintf("array lengths differ: %d vs %d", len(a.Items), len(b.Items))}
	}
	items := make([]wdl.Value, len(a.Items))
	for i := range a.Items {
		items[i] = wdl.Pair{LeftVal: a.Items[i], RightVal: b.Items[i]}
	}
	return wdl.Array{Elem: wdl.PairType(a.Elem, b.Elem), Items: items}, nil
}

// unzip splits an array of pairs into a pair of arrays. An empty array yields
// a pair of two empty arrays.
func fnUnzip(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("unzip", args[0])
	if err != nil {
		return nil, err
	}
	leftElem, rightElem := wdl.StringType(), wdl.StringType()
	if arr.Elem.Kind == wdl.TypePair {
		if arr.Elem.Left != nil {
			leftElem = *arr.Elem.Left
		}
		if arr.Elem.Right != nil {
			rightElem = *arr.Elem.Right
		}
	}
	lefts := make([]wdl.Value, len(arr.Items))
	rights := make([]wdl.Value, len(arr.Items))
	for i, v := range arr.Items {
		p, ok := v.(wdl.Pair)
		if !ok {
			return nil, &FunctionError{Func: "unzip", Msg: "argument must be an array of pairs"}
		}
		lefts[i] = p.LeftVal
		rights[i] = p.RightVal
	}
	return wdl.Pair{
		LeftVal:  wdl.Array{Elem: leftElem, Items: lefts},
		RightVal: wdl.Array{Elem: rightElem, Items: rights},
	}, nil
}

func fnCross(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	a, err := argArray("cross", args[0])
	if err != nil {
		return nil, err
	}
	b, err := argArray("cross", args[1])
	if err != nil {
		return nil, err
	}
	items := make([]wdl.Value, 0, len(a.Items)*len(b.Items))
	for _, l := range a.Items {
		for _, r := range b.Items {
			items = append(items, wdl.Pair{LeftVal: l, RightVal: r})
		}
	}
	return wdl.Array{Elem: wdl.PairType(a.Elem, b.Elem), Items: items}, nil
}

// chunk splits an array into consecutive sub-arrays of n elements; the final
// sub-array holds the remainder. Negative n is an error.
func fnChunk(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("chunk", args[0])
	if err != nil {
		return nil, err
	}
	size, err := argInt("chunk", args[1])
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &FunctionError{Func: "chunk", Msg: "chunk size cannot be negative"}
	}
	elemType := wdl.ArrayType(arr.Elem)
	if size == 0 {
		if len(arr.Items) > 0 {
			return nil, &FunctionError{Func: "chunk", Msg: "chunk size cannot be zero for a non-empty array"}
		}
		return wdl.Array{Elem: elemType}, nil
	}
	var chunks []wdl.Value
	for start := 0; start < len(arr.Items); start += int(size) {
		end := start + int(size)
		if end > len(arr.Items) {
			end = len(arr.Items)
		}
		chunks = append(chunks, wdl.Array{Elem: arr.Elem, Items: arr.Items[start:end]})
	}
	return wdl.Array{Elem: elemType, Items: chunks}, nil
}

func fnRange(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	n, err := argInt("range", args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &FunctionError{Func: "range", Msg: "argument cannot be negative"}
	}
	items := make([]wdl.Value, n)
	for i := int64(0); i < n; i++ {
		items[i] = wdl.Int(i)
	}
	return wdl.Array{Elem: wdl.IntType(), Items: items}, nil
}

func fnTranspose(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("transpose", args[0])
	if err != nil {
		return nil, err
	}
	rows := make([]wdl.Array, len(arr.Items))
	width := -1
	for i, v := range arr.Items {
		row, ok := v.(wdl.Array)
		if !ok {
			return nil, &FunctionError{Func: "transpose", Msg: "argument must be an array of arrays"}
		}
		if width == -1 {
			width = len(row.Items)
		} else if len(row.Items) != width {
			return nil, &FunctionError{Func: "transpose", Msg: "inner arrays have unequal lengths"}
		}
		rows[i] = row
	}
	if width == -1 {
		width = 0
	}
	elem := wdl.StringType()
	if arr.Elem.Kind == wdl.TypeArray && arr.Elem.Elem != nil {
		elem = *arr.Elem.Elem
	}
	cols := make([]wdl.Value, width)
	for c := 0; c < width; c++ {
		col := make([]wdl.Value, len(rows))
		for r := range rows {
			col[r] = rows[r].Items[c]
		}
		cols[c] = wdl.Array{Elem: elem, Items: col}
	}
	return wdl.Array{Elem: wdl.ArrayType(elem), Items: cols}, nil
}

func fnPrefix(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	p, err := argString("prefix", args[0])
	if err != nil {
		return nil, err
	}
	return mapToStrings("prefix", args[1], func(s string) string { return p + s })
}

func fnSuffix(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	s, err := argString("suffix", args[0])
	if err != nil {
		return nil, err
	}
	return mapToStrings("suffix", args[1], func(e string) string { return e + s })
}

func mapToStrings(name string, v wdl.Value, f func(string) string) (wdl.Value, error) {
	arr, err := argArray(name, v)
	if err != nil {
		return nil, err
	}
	items := make([]wdl.Value, len(arr.Items))
	for i, item := range arr.Items {
		s, err := Stringify(item)
		if err != nil {
			return nil, &FunctionError{Func: name, Msg: err.Error()}
		}
		items[i] = wdl.String(f(s))
	}
	return wdl.Array{Elem: wdl.StringType(), Items: items}, nil
}

func fnSep(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	s, err := argString("sep", args[0])
	if err != nil {
		return nil, err
	}
	arr, err := argArray("sep", args[1])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(arr.Items))
	for i, item := range arr.Items {
		ps, err := Stringify(item)
		if err != nil {
			return nil, &FunctionError{Func: "sep", Msg: err.Error()}
		}
		parts[i] = ps
	}
	return wdl.String(strings.Join(parts, s)), nil
}

func fnBasename(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	p, err := argString("basename", args[0])
	if err != nil {
		return nil, err
	}
	base := filepath.Base(p)
	if len(args) > 1 {
		suffix, err := argString("basename", args[1])
		if err != nil {
			return nil, err
		}
		base = strings.TrimSuffix(base, suffix)
	}
	return wdl.String(base), nil
}

func fnSub(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	input, err := argString("sub", args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := argString("sub", args[1])
	if err != nil {
		return nil, err
	}
	replace, err := argString("sub", args[2])
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &FunctionError{Func: "sub", Msg: fmt.Sprintf("invalid pattern: %v", err)}
	}
	return wdl.String(re.ReplaceAllString(input, replace)), nil
}

func fnKeys(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	m, ok := args[0].(wdl.Map)
	if !ok {
		return nil, &FunctionError{Func: "keys", Msg: fmt.Sprintf("argument is %s, not Map", args[0].Type())}
	}
	items := make([]wdl.Value, len(m.Entries))
	for i, e := range m.Entries {
		items[i] = e.K
	}
	return wdl.Array{Elem: m.KeyType, Items: items}, nil
}

func fnValues(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	m, ok := args[0].(wdl.Map)
	if !ok {
		return nil, &FunctionError{Func: "values", Msg: fmt.Sprintf("argument is %s, not Map", args[0].Type())}
	}
	items := make([]wdl.Value, len(m.Entries))
	for i, e := range m.Entries {
		items[i] = e.V
	}
	return wdl.Array{Elem: m.ValueType, Items: items}, nil
}

func fnAsPairs(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	m, ok := args[0].(wdl.Map)
	if !ok {
		return nil, &FunctionError{Func: "as_pairs", Msg: fmt.Sprintf("argument is %s, not Map", args[0].Type())}
	}
	items := make([]wdl.Value, len(m.Entries))
	for i, e := range m.Entries {
		items[i] = wdl.Pair{LeftVal: e.K, RightVal: e.V}
	}
	return wdl.Array{Elem: wdl.PairType(m.KeyType, m.ValueType), Items: items}, nil
}

func fnAsMap(_ *Evaluator, args []wdl.Value) (wdl.Value, error) {
	arr, err := argArray("as_map", args[0])
	if err != nil {
		return nil, err
	}
	keyType, valueType := wdl.StringType(), wdl.StringType()
	if arr.Elem.Kind == wdl.TypePair {
		if arr.Elem.Left != nil {
			keyType = *arr.Elem.Left
		}
		if arr.Elem.Right != nil {
			valueType = *arr.Elem.Right
		}
	}
	entries := make([]wdl.MapEntry, len(arr.Items))
	for i, v := range arr.Items {
		p, ok := v.(wdl.Pair)
		if !ok {
			return nil, &FunctionError{Func: "as_map", Msg: "argument must be an array of pairs"}
		}
		entries[i] = wdl.MapEntry{K: p.LeftVal, V: p.RightVal}
	}
	m, err := wdl.NewMap(keyType, valueType, entries)
	if err != nil {
		return nil, &FunctionError{Func: "as_map", Msg: err.Error()}
	}
	return m, nil
}

// --- Task-scoped functions ---

func (ev *Evaluator) taskScope(fn string) (*TaskScope, error) {
	if ev.scope == nil {
		return nil, &FunctionError{Func: fn, Msg: "only available during task output evaluation"}
	}
	return ev.scope, nil
}

func (ev *Evaluator) resolvePath(v wdl.Value, fn string) (string, error) {
	scope, err := ev.taskScope(fn)
	if err != nil {
		return "", err
	}
	p, ok := stringOperand(v)
	if !ok {
		return "", &FunctionError{Func: fn, Msg: fmt.Sprintf("argument is %s, not a path", v.Type())}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(scope.WorkDir, p)
	}
	return p, nil
}

func fnStdout(ev *Evaluator, _ []wdl.Value) (wdl.Value, error) {
	scope, err := ev.taskScope("stdout")
	if err != nil {
		return nil, err
	}
	return wdl.File(scope.StdoutPath), nil
}

func fnStderr(ev *Evaluator, _ []wdl.Value) (wdl.Value, error) {
	scope, err := ev.taskScope("stderr")
	if err != nil {
		return nil, err
	}
	return wdl.File(scope.StderrPath), nil
}

func fnGlob(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	scope, err := ev.taskScope("glob")
	if err != nil {
		return nil, err
	}
	pattern, err := argString("glob", args[0])
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(scope.WorkDir, pattern))
	if err != nil {
		return nil, &FunctionError{Func: "glob", Msg: err.Error()}
	}
	sort.Strings(matches)
	items := make([]wdl.Value, len(matches))
	for i, m := range matches {
		items[i] = wdl.File(m)
	}
	return wdl.Array{Elem: wdl.FileType(), Items: items}, nil
}

func fnSize(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	path, err := ev.resolvePath(args[0], "size")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FunctionError{Func: "size", Msg: err.Error()}
	}
	bytes := float64(info.Size())
	unit := "B"
	if len(args) > 1 {
		unit, err = argString("size", args[1])
		if err != nil {
			return nil, err
		}
	}
	div, ok := sizeUnits[unit]
	if !ok {
		return nil, &FunctionError{Func: "size", Msg: fmt.Sprintf("unknown unit %q", unit)}
	}
	return wdl.Float(bytes / div), nil
}

var sizeUnits = map[string]float64{
	"B":  1,
	"KB": 1e3, "MB": 1e6, "GB": 1e9, "TB": 1e12,
	"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30, "TiB": 1 << 40,
}

// read_lines reads a file into an Array[String], one element per line, with
// line endings stripped.
func fnReadLines(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_lines")
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	var items []wdl.Value
	if text != "" || len(data) > 0 && data[0] == '\n' {
		for _, line := range strings.Split(text, "\n") {
			items = append(items, wdl.String(strings.TrimSuffix(line, "\r")))
		}
	}
	return wdl.Array{Elem: wdl.StringType(), Items: items}, nil
}

func fnReadString(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_string")
	if err != nil {
		return nil, err
	}
	return wdl.String(strings.TrimRight(string(data), "\r\n")), nil
}

func fnReadInt(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_int")
	if err != nil {
		return nil, err
	}
	i, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil, &FunctionError{Func: "read_int", Msg: "file does not contain an integer"}
	}
	return wdl.Int(i), nil
}

func fnReadFloat(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_float")
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return nil, &FunctionError{Func: "read_float", Msg: "file does not contain a float"}
	}
	return wdl.Float(f), nil
}

func fnReadBoolean(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_boolean")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "true":
		return wdl.Boolean(true), nil
	case "false":
		return wdl.Boolean(false), nil
	}
	return nil, &FunctionError{Func: "read_boolean", Msg: "file does not contain a boolean"}
}

func fnReadJSON(ev *Evaluator, args []wdl.Value) (wdl.Value, error) {
	data, err := ev.readFile(args[0], "read_json")
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &FunctionError{Func: "read_json", Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	v, err := wdl.DecodeJSON(raw, wdl.ObjectType())
	if err != nil {
		// Not an object at top level; fall back to dynamic decoding.
		return decodeDynamicJSON(raw)
	}
	return v, nil
}

func decodeDynamicJSON(raw any) (wdl.Value, error) {
	switch v := raw.(type) {
	case nil:
		return wdl.None{}, nil
	case bool:
		return wdl.Boolean(v), nil
	case string:
		return wdl.String(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return wdl.Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, &FunctionError{Func: "read_json", Msg: err.Error()}
		}
		return wdl.Float(f), nil
	case []any:
		items := make([]wdl.Value, len(v))
		elem := wdl.StringType()
		for i, item := range v {
			dv, err := decodeDynamicJSON(item)
			if err != nil {
				return nil, err
			}
			items[i] = dv
			if i == 0 {
				elem = dv.Type()
			}
		}
		return wdl.Array{Elem: elem, Items: items}, nil
	}
	return nil, &FunctionError{Func: "read_json", Msg: fmt.Sprintf("unsupported JSON value %T", raw)}
}

func (ev *Evaluator) readFile(v wdl.Value, fn string) ([]byte, error) {
	path, err := ev.resolvePath(v, fn)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FunctionError{Func: fn, Msg: err.Error()}
	}
	return data, nil
}
