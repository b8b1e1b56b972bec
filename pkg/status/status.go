// Package status renders a profile and its modules as a tree for the
// status command.
package status

import (
	"fmt"
	"sort"

	gotree "github.com/disiqueira/gotree/v3"

	"github.com/configma/configma/pkg/config"
	"github.com/configma/configma/pkg/profile"
)

// Render builds a textual tree of the profile: every required module in
// precedence order (highest last), each with its entries and their current
// link state.
func Render(p *profile.Profile, ctx *config.Ctx) string {
	root := gotree.New(fmt.Sprintf("profile %s", p.Required.Name))

	for _, name := range p.Required.Modules {
		m := p.Modules[name]
		node := root.Add(fmt.Sprintf("%s (%d entries)", name, len(m.HomeEntries)+len(m.RootEntries)))
		for _, e := range m.Entries(ctx) {
			node.Add(fmt.Sprintf("%s %s", marker(e.LinksToDest()), e.Key))
		}
	}

	if unlisted := unlistedModules(p); len(unlisted) > 0 {
		node := root.Add("available (not in profile)")
		for _, name := range unlisted {
			node.Add(name)
		}
	}

	return root.Print()
}

func marker(linked bool) string {
	if linked {
		return "✓"
	}
	return "✗"
}

func unlistedModules(p *profile.Profile) []string {
	inProfile := make(map[string]struct{}, len(p.Required.Modules))
	for _, name := range p.Required.Modules {
		inProfile[name] = struct{}{}
	}

	var out []string
	for _, m := range p.Modules {
		if _, ok := inProfile[m.Name]; !ok {
			out = append(out, m.Name)
		}
	}
	sort.Strings(out)
	return out
}
