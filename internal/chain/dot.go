package chain

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/specialistvlad/buildchain/internal/item"
)

// WriteDot renders the chain as a Graphviz digraph. Edges point from a
// producer to its consumer and are labelled with the items passed along.
func (c *Chain) WriteDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph buildchain {")
	fmt.Fprintln(bw, "    node [shape=box];")

	for _, s := range c.steps {
		attrs := []string{"label=" + quoteDot(s.Name)}
		if s.NonEssential {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(bw, "    %s [%s];\n", quoteDot(s.Name), strings.Join(attrs, ", "))
	}
	if len(c.steps) > 0 {
		fmt.Fprintln(bw)
	}

	for _, s := range c.steps {
		for _, dependent := range s.Dependents {
			consumer := c.byName[dependent]
			items := c.passed(s, consumer)
			fmt.Fprintf(bw, "    %s -> %s [label=%s];\n", quoteDot(s.Name), quoteDot(dependent), quoteDot(strings.Join(items, ", ")))
		}
	}

	for _, id := range c.finals {
		p := c.plans[id]
		fmt.Fprintf(bw, "    %s [shape=ellipse];\n", quoteDot("final "+id.Name()))
		for _, producer := range p.Producers {
			fmt.Fprintf(bw, "    %s -> %s;\n", quoteDot(producer), quoteDot("final "+id.Name()))
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// passed lists the items flowing from producer to consumer.
func (c *Chain) passed(producer, consumer *Step) []string {
	var names []string
	for _, cons := range consumer.Consumes {
		p := c.plans[cons.Item]
		if p != nil && contains(p.Producers, producer.Name) {
			names = append(names, cons.Item.Name())
		}
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func quoteDot(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func sortedIDs(ids []item.ID) []item.ID {
	out := append([]item.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
