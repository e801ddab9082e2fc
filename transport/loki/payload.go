package loki

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Stream is one labelled value series in a push request.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// Payload is the push request body.
type Payload struct {
	Streams []Stream `json:"streams"`
}

// item is the queued, already-formatted form of one log entry.
type item struct {
	labels map[string]string
	ts     time.Time
	line   string
}

// buildPayload merges a batch into one push body, grouping items with
// identical label sets into a single stream. Stream order follows the
// first appearance of each label set, so relative entry order survives.
func buildPayload(batch []item) Payload {
	var order []string
	streams := make(map[string]*Stream)

	for _, it := range batch {
		key := labelSignature(it.labels)
		s, ok := streams[key]
		if !ok {
			s = &Stream{Stream: it.labels}
			streams[key] = s
			order = append(order, key)
		}
		ts := strconv.FormatInt(it.ts.UnixNano(), 10)
		s.Values = append(s.Values, [2]string{ts, it.line})
	}

	payload := Payload{Streams: make([]Stream, 0, len(order))}
	for _, key := range order {
		payload.Streams = append(payload.Streams, *streams[key])
	}
	return payload
}

func labelSignature(labels map[string]string) string {
	keys := slices.Sorted(maps.Keys(labels))
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

// buildLabels produces the capped label set for one entry: the level
// label first, then the static labels, then per-entry fields filling
// the remaining slots. Map iteration has no order, so keys are taken
// sorted to keep the selection deterministic.
func buildLabels(level string, static map[string]string, fields map[string]any, max int) map[string]string {
	labels := map[string]string{"level": level}

	staticKeys := make([]string, 0, len(static))
	for k := range static {
		staticKeys = append(staticKeys, k)
	}
	sort.Strings(staticKeys)
	for _, k := range staticKeys {
		if len(labels) >= max {
			return labels
		}
		if _, taken := labels[k]; taken {
			continue
		}
		labels[k] = static[k]
	}

	fieldKeys := make([]string, 0, len(fields))
	for k := range fields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	for _, k := range fieldKeys {
		if len(labels) >= max {
			return labels
		}
		if _, taken := labels[k]; taken {
			continue
		}
		labels[k] = fmt.Sprint(fields[k])
	}
	return labels
}
