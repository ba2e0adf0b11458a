package capture

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// AddressCount is one entry of a top talker ranking.
type AddressCount struct {
	Address string
	Count   int
}

// Ranking is an ordered list of addresses by descending frame count. It
// encodes as a JSON object whose keys keep the ranking order.
type Ranking []AddressCount

// MarshalJSON implements json.Marshaler.
func (r Ranking) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Address)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(entry.Count)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a ranking, restoring key order from the input.
func (r *Ranking) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Ranking{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var count int
		if err := dec.Decode(&count); err != nil {
			return err
		}
		out = append(out, AddressCount{Address: key, Count: count})
	}
	*r = out
	return nil
}

// counter tallies occurrences and remembers first-seen order.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns the n most frequent keys; equal counts keep first-seen order.
func (c *counter) top(n int) Ranking {
	ranked := make(Ranking, 0, len(c.order))
	for _, key := range c.order {
		ranked = append(ranked, AddressCount{Address: key, Count: c.counts[key]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// aggregator accumulates the running statistics of one pass.
type aggregator struct {
	previewLimit int

	total        int
	protocols    map[string]int
	sources      *counter
	destinations *counter
	timeline     map[string]int
	preview      []Frame

	first, last time.Time
}

func newAggregator(previewLimit int) *aggregator {
	return &aggregator{
		previewLimit: previewLimit,
		protocols:    make(map[string]int),
		sources:      newCounter(),
		destinations: newCounter(),
		timeline:     make(map[string]int),
		preview:      []Frame{},
	}
}

func (a *aggregator) add(f Frame, ts time.Time) {
	a.total++
	a.protocols[f.Protocol]++
	a.sources.add(f.Source)
	a.destinations.add(f.Destination)
	a.timeline[bucketKey(ts)]++

	if a.first.IsZero() || ts.Before(a.first) {
		a.first = ts
	}
	if a.last.IsZero() || ts.After(a.last) {
		a.last = ts
	}

	if len(a.preview) < a.previewLimit {
		a.preview = append(a.preview, f)
	}
}

func (a *aggregator) result(topN int) *Result {
	var duration float64
	if a.total > 0 {
		duration = a.last.Sub(a.first).Seconds()
	}

	return &Result{
		Summary: Summary{
			TotalPackets:    a.total,
			Duration:        duration,
			Protocols:       a.protocols,
			TopSources:      a.sources.top(topN),
			TopDestinations: a.destinations.top(topN),
		},
		Packets:  a.preview,
		Timeline: a.timeline,
	}
}
