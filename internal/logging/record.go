package logging

import (
	"log/slog"
	"strings"
	"time"
)

// field is one attribute after group prefixes have been applied.
type field struct {
	key   string
	value slog.Value
}

// entry is a record reduced to the shape both handlers render: identity
// fields lifted out, remaining attributes in first-seen order with the last
// value for a repeated key winning.
type entry struct {
	time        time.Time
	level       slog.Level
	message     string
	component   string
	jobID       string
	stage       string
	correlation string
	source      *slog.Source
	fields      []field
}

// scope accumulates WithAttrs/WithGroup state for a handler.
type scope struct {
	fields []field
	groups []string
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	next := scope{groups: s.groups}
	next.fields = append(append([]field(nil), s.fields...), flatten(s.groups, attrs)...)
	return next
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	return scope{
		fields: s.fields,
		groups: append(append([]string(nil), s.groups...), name),
	}
}

func (s scope) entry(record slog.Record) entry {
	e := entry{
		time:    record.Time,
		level:   record.Level,
		message: strings.TrimSpace(record.Message),
		source:  record.Source(),
	}
	if e.time.IsZero() {
		e.time = time.Now()
	}

	all := append([]field(nil), s.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		all = append(all, flatten(s.groups, []slog.Attr{attr})...)
		return true
	})

	index := make(map[string]int, len(all))
	for _, f := range all {
		switch f.key {
		case FieldComponent:
			e.component = attrString(f.value)
			continue
		case FieldJobID:
			e.jobID = attrString(f.value)
			continue
		case FieldStage:
			e.stage = attrString(f.value)
			continue
		case FieldCorrelationID:
			e.correlation = attrString(f.value)
			continue
		}
		if pos, ok := index[f.key]; ok {
			e.fields[pos].value = f.value
			continue
		}
		index[f.key] = len(e.fields)
		e.fields = append(e.fields, f)
	}
	return e
}

func flatten(prefix []string, attrs []slog.Attr) []field {
	var out []field
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			nested := prefix
			if attr.Key != "" {
				nested = append(append([]string(nil), prefix...), attr.Key)
			}
			out = append(out, flatten(nested, value.Group())...)
			continue
		}
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			continue
		}
		if len(prefix) > 0 {
			key = strings.Join(prefix, ".") + "." + key
		}
		out = append(out, field{key: key, value: value})
	}
	return out
}
