package loader

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/seantiz/modloader/internal/model"
)

// ModuleInfo is a snapshot of one registry entry.
type ModuleInfo struct {
	Name    string      `json:"name"`
	State   model.State `json:"state"`
	URL     string      `json:"url,omitempty"`
	Group   string      `json:"group,omitempty"`
	Settled bool        `json:"settled"`
	Aliases []string    `json:"aliases,omitempty"`
	Pending []string    `json:"pending,omitempty"`
	Bytes   int         `json:"bytes,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Dump returns every module whose state is at least threshold, sorted by name.
func (l *Loader) Dump(threshold model.State) []ModuleInfo {
	var out []ModuleInfo
	for _, m := range l.reg.All() {
		if m.State() >= threshold {
			out = append(out, l.info(m))
		}
	}
	return out
}

// Module returns a snapshot of id.
func (l *Loader) Module(id string) (ModuleInfo, bool) {
	m, ok := l.reg.Get(qualify(id))
	if !ok {
		return ModuleInfo{}, false
	}
	return l.info(m), true
}

func (l *Loader) info(m *model.Module) ModuleInfo {
	info := ModuleInfo{
		Name:    m.Name,
		State:   m.State(),
		URL:     m.URL,
		Group:   m.Group,
		Settled: m.Settled(),
		Aliases: m.Aliases(),
		Pending: append([]string(nil), m.Pending...),
		Bytes:   l.sizes[m.Name],
	}
	if err := m.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// WriteReport writes a human-readable table of modules followed by per-state
// totals.
func WriteReport(w io.Writer, modules []ModuleInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATE\tSIZE\tGROUP\tURL")

	counts := make(map[model.State]int)
	var total uint64
	for _, m := range modules {
		counts[m.State]++
		total += uint64(m.Bytes)
		size := "-"
		if m.Bytes > 0 {
			size = humanize.Bytes(uint64(m.Bytes))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.State, size, orDash(m.Group), orDash(m.URL))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	states := make([]model.State, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	_, err := fmt.Fprintf(w, "\n%s modules, %s fetched\n", humanize.Comma(int64(len(modules))), humanize.Bytes(total))
	if err != nil {
		return err
	}
	for _, s := range states {
		if _, err := fmt.Fprintf(w, "  %-10s %s\n", s, humanize.Comma(int64(counts[s]))); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
