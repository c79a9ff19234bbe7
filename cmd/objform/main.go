// Command objform inspects serialized forms stored in the memform
// text syntax.
package main

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/heapq"
	"github.com/creachadair/mds/mapset"
	"github.com/kr/pretty"
	"github.com/objform/objform/formfile"
	"github.com/objform/objform/memform"
)

func main() {
	root := &command.C{
		Name:  "objform",
		Usage: "command args...",
		Commands: []*command.C{
			{
				Name:  "print",
				Usage: "print file",
				Help:  "Pretty-print the form stored in a file.",
				Run:   command.Adapt(runPrint),
			},
			{
				Name:     "stats",
				Usage:    "stats file...",
				Help:     "Summarize the shape of one or more stored forms.",
				SetFlags: command.Flags(flax.MustBind, &statsArgs),
				Run:      runStats,
			},
			{
				Name:  "fmt",
				Usage: "fmt file",
				Help:  "Rewrite a stored form in canonical text syntax, in place.",
				Run:   command.Adapt(runFmt),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	env := root.NewEnv(nil)
	command.RunOrFail(env, os.Args[1:])
}

func runPrint(env *command.Env, path string) error {
	n, err := formfile.Load(path, memform.Codec{})
	if err != nil {
		return err
	}
	fmt.Printf("%# v\n", pretty.Formatter(n))
	return nil
}

func runFmt(env *command.Env, path string) error {
	n, err := formfile.Load(path, memform.Codec{})
	if err != nil {
		return err
	}
	return formfile.Save(path, memform.Codec{}, n)
}

var statsArgs struct {
	Top int `flag:"top,default=10,Number of most common member names to show"`
}

type formStats struct {
	kinds   map[memform.Kind]int
	members map[string]int
	tags    mapset.Set[string]
	marks   int
}

func runStats(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("stats requires at least one file")
	}

	st := formStats{
		kinds:   map[memform.Kind]int{},
		members: map[string]int{},
		tags:    mapset.New[string](),
	}
	for _, path := range env.Args {
		n, err := formfile.Load(path, memform.Codec{})
		if err != nil {
			return err
		}
		collect(&st, n)
	}

	for _, k := range []memform.Kind{
		memform.KindNull, memform.KindScalar, memform.KindList,
		memform.KindMap, memform.KindRecord, memform.KindRef,
	} {
		if c := st.kinds[k]; c > 0 {
			fmt.Printf("%-8s %d\n", k, c)
		}
	}
	fmt.Println("referable marks:", st.marks)

	if !st.tags.IsEmpty() {
		fmt.Println("type tags:")
		for _, t := range slices.Sorted(maps.Keys(st.tags)) {
			fmt.Println("  ", t)
		}
	}

	if len(st.members) > 0 {
		type nameCount struct {
			name  string
			count int
		}
		q := heapq.New(func(a, b nameCount) int {
			if d := cmp.Compare(b.count, a.count); d != 0 {
				return d
			}
			return cmp.Compare(a.name, b.name)
		})
		for name, count := range st.members {
			q.Add(nameCount{name, count})
		}
		fmt.Println("most common member names:")
		for i := 0; i < statsArgs.Top && !q.IsEmpty(); i++ {
			nc, _ := q.Pop()
			fmt.Printf("  %-20s %d\n", nc.name, nc.count)
		}
	}
	return nil
}

// collect walks the form on an explicit stack; stored forms can be
// arbitrarily deep.
func collect(st *formStats, root *memform.Node) {
	stack := []*memform.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		st.kinds[n.Kind]++
		if n.ID != 0 {
			st.marks++
		}
		if n.HasTag {
			st.tags.Add(n.Tag)
		}
		switch n.Kind {
		case memform.KindList:
			stack = append(stack, n.Elems...)
		case memform.KindMap:
			for _, e := range n.Entries {
				stack = append(stack, e.Key, e.Value)
			}
		case memform.KindRecord:
			for _, m := range n.Members {
				st.members[m.Name]++
				stack = append(stack, m.Value)
			}
		}
	}
}
