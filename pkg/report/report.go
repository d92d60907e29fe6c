// Package report renders sampler results as terminal tables.
package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/sranges/pkg/mcmc"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/stats"
)

const (
	percentageValue = 100
	floatPrecision  = 4
)

// FormatConfig controls table rendering.
type FormatConfig struct {
	// MaxItems truncates long tables. Zero means no limit.
	MaxItems int
	// Plain draws ASCII borders instead of box-drawing characters.
	Plain bool
}

// Formatter renders report tables.
type Formatter struct {
	config FormatConfig
}

// NewFormatter creates a Formatter.
func NewFormatter(config FormatConfig) *Formatter {
	return &Formatter{config: config}
}

func (f *Formatter) newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)

	if f.config.Plain {
		tbl.SetStyle(table.StyleDefault)
	} else {
		tbl.SetStyle(table.StyleLight)
	}

	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	return tbl
}

func (f *Formatter) limit(n int) int {
	if f.config.MaxItems > 0 && n > f.config.MaxItems {
		return f.config.MaxItems
	}

	return n
}

// ChainSummary is the end-of-run state of one chain.
type ChainSummary struct {
	Chain      int
	Iterations int64
	LogDensity stats.Summary
	RootHeight stats.Summary
	Proposed   map[string]int64
	Accepted   map[string]int64
}

// Summarize builds chain summaries from finished chains and their trace, discarding the
// first burnIn fraction of samples.
func Summarize(chains []*mcmc.Chain, trace *mcmc.Trace, burnIn float64) []ChainSummary {
	out := make([]ChainSummary, 0, len(chains))

	for _, c := range chains {
		out = append(out, ChainSummary{
			Chain:      c.ID(),
			Iterations: c.Iteration(),
			LogDensity: stats.Summarize(trace.Column(c.ID(), burnIn, func(p mcmc.TracePoint) float64 { return p.LogDensity })),
			RootHeight: stats.Summarize(trace.Column(c.ID(), burnIn, func(p mcmc.TracePoint) float64 { return p.RootHeight })),
			Proposed:   c.Proposed(),
			Accepted:   c.Accepted(),
		})
	}

	return out
}

// Chains renders one row per chain with the posterior summary of the log density and root
// height.
func (f *Formatter) Chains(summaries []ChainSummary) string {
	tbl := f.newTable("Chains")
	tbl.AppendHeader(table.Row{"chain", "iterations", "samples", "log density", "95% interval", "ESS", "root height"})

	for _, s := range summaries {
		tbl.AppendRow(table.Row{
			s.Chain,
			humanize.Comma(s.Iterations),
			humanize.Comma(int64(s.LogDensity.N)),
			formatFloat(s.LogDensity.Mean),
			fmt.Sprintf("[%s, %s]", formatFloat(s.LogDensity.Lower), formatFloat(s.LogDensity.Upper)),
			formatFloat(s.LogDensity.ESS),
			formatFloat(s.RootHeight.Median),
		})
	}

	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	return tbl.Render()
}

// Operators renders proposal and acceptance counts summed over chains.
func (f *Formatter) Operators(summaries []ChainSummary) string {
	proposed := make(map[string]int64)
	accepted := make(map[string]int64)

	for _, s := range summaries {
		for name, n := range s.Proposed {
			proposed[name] += n
		}

		for name, n := range s.Accepted {
			accepted[name] += n
		}
	}

	names := make([]string, 0, len(proposed))
	for name := range proposed {
		names = append(names, name)
	}

	slices.Sort(names)

	tbl := f.newTable("Operators")
	tbl.AppendHeader(table.Row{"operator", "proposed", "accepted", "rate"})

	var totalProposed, totalAccepted int64

	for _, name := range names {
		tbl.AppendRow(table.Row{
			name,
			humanize.Comma(proposed[name]),
			humanize.Comma(accepted[name]),
			formatRate(accepted[name], proposed[name]),
		})

		totalProposed += proposed[name]
		totalAccepted += accepted[name]
	}

	tbl.AppendFooter(table.Row{
		"total", humanize.Comma(totalProposed), humanize.Comma(totalAccepted), formatRate(totalAccepted, totalProposed),
	})

	return tbl.Render()
}

// Topologies renders the most frequent sampled topologies.
func (f *Formatter) Topologies(counts []mcmc.TopologyCount, total int64) string {
	tbl := f.newTable("Topologies")
	tbl.AppendHeader(table.Row{"#", "count", "frequency", "topology"})

	for i, c := range counts[:f.limit(len(counts))] {
		tbl.AppendRow(table.Row{i + 1, humanize.Comma(c.Count), formatRate(c.Count, total), c.Topology})
	}

	tbl.AppendFooter(table.Row{"", humanize.Comma(total), "", fmt.Sprintf("%d distinct", len(counts))})

	return tbl.Render()
}

// Ranges renders the stratigraphic ranges of a tree with their node paths.
func (f *Formatter) Ranges(tree *srtree.Tree) string {
	tbl := f.newTable("Ranges")
	tbl.AppendHeader(table.Row{"range", "first", "last", "samples", "nodes"})

	ranges := tree.Ranges()

	for _, r := range ranges[:f.limit(len(ranges))] {
		last := r.LastOccurrence()
		if r.IsSingleFossil() {
			last = "-"
		}

		ids := make([]string, 0, r.Len())
		for _, id := range r.IDs() {
			ids = append(ids, strconv.Itoa(id))
		}

		tbl.AppendRow(table.Row{r.Name(), r.FirstOccurrence(), last, r.Len(), strings.Join(ids, " ")})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d ranges", len(ranges))})

	return tbl.Render()
}

// Write renders tables to w separated by blank lines.
func Write(w io.Writer, tables ...string) error {
	_, err := io.WriteString(w, strings.Join(tables, "\n\n")+"\n")

	return err
}

func formatFloat(v float64) string {
	return humanize.FtoaWithDigits(v, floatPrecision)
}

func formatRate(n, total int64) string {
	if total == 0 {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*percentageValue)
}
