package tablestate

import (
	"encoding/json"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/bucket"
)

// Reader is the read side of the bucket facade.
type Reader interface {
	Get(kind bucket.Kind, key string) (any, bool)
}

// Writer is the bucket facade as seen by change handlers.
type Writer interface {
	Reader
	Patch(kind bucket.Kind, partial map[string]any) error
	Remove(kind bucket.Kind, keys ...string) error
}

// source names the candidate that won a resolution.
type source string

const (
	sourcePersisted source = "persisted"
	sourceInitial   source = "initial"
	sourceDefault   source = "default"
)

type resolution struct {
	source    source
	malformed bool
}

func fallbackSource(hasInitial bool) source {
	if hasInitial {
		return sourceInitial
	}
	return sourceDefault
}

// read returns the raw value stored for t. Disabled targets read nothing.
func read(r Reader, t target) (any, bool) {
	if !t.enabled {
		return nil, false
	}
	v, ok := r.Get(t.kind, t.key)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// present reports whether t's key holds any value at all.
func present(r Reader, t target) bool {
	_, ok := read(r, t)
	return ok
}

// generic converts a raw bucket value to its generic JSON form. Strings that
// hold JSON documents are decoded; other strings stay as they are.
func generic(raw any) any {
	if s, ok := raw.(string); ok {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
		return s
	}
	v, err := jsonValue(raw)
	if err != nil {
		return raw
	}
	return v
}

// patchSet groups writes per bucket so one handler call issues one patch
// and one remove per bucket, URL first.
type patchSet struct {
	patches map[bucket.Kind]map[string]any
	removes map[bucket.Kind][]string
}

func newPatchSet() *patchSet {
	return &patchSet{
		patches: map[bucket.Kind]map[string]any{},
		removes: map[bucket.Kind][]string{},
	}
}

func (p *patchSet) set(t target, value any) {
	if !t.enabled {
		return
	}
	if p.patches[t.kind] == nil {
		p.patches[t.kind] = map[string]any{}
	}
	p.patches[t.kind][t.key] = value
}

func (p *patchSet) remove(t target) {
	if !t.enabled {
		return
	}
	p.removes[t.kind] = append(p.removes[t.kind], t.key)
}

func (p *patchSet) apply(w Writer) error {
	for _, kind := range []bucket.Kind{bucket.URL, bucket.Local} {
		if err := w.Patch(kind, p.patches[kind]); err != nil {
			return err
		}
		if err := w.Remove(kind, p.removes[kind]...); err != nil {
			return err
		}
	}
	return nil
}

// writeOrRemove stores value under t, or removes t's key when empty is true.
func writeOrRemove(w Writer, t target, value any, empty bool) error {
	ps := newPatchSet()
	if empty {
		ps.remove(t)
	} else {
		v, err := jsonValue(value)
		if err != nil {
			return err
		}
		ps.set(t, v)
	}
	return ps.apply(w)
}
