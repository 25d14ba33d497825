package hclchain

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes every top-level block of a chain file.
type fileRoot struct {
	Items    []*itemBlock    `hcl:"item,block"`
	Initials []*initialBlock `hcl:"initial,block"`
	Finals   []*finalBlock   `hcl:"final,block"`
	Steps    []*stepBlock    `hcl:"step,block"`
}

type itemBlock struct {
	Name        string    `hcl:"name,label"`
	Mode        string    `hcl:"mode,optional"`
	Description string    `hcl:"description,optional"`
	DefRange    hcl.Range `hcl:",def_range"`
}

type initialBlock struct {
	Name     string         `hcl:"name,label"`
	Value    hcl.Expression `hcl:"value,optional"`
	Values   hcl.Expression `hcl:"values,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type finalBlock struct {
	Name     string    `hcl:"name,label"`
	DefRange hcl.Range `hcl:",def_range"`
}

type stepBlock struct {
	Name                string          `hcl:"name,label"`
	Handler             string          `hcl:"handler"`
	Consumes            []string        `hcl:"consumes,optional"`
	ConsumesOptional    []string        `hcl:"consumes_optional,optional"`
	Produces            []string        `hcl:"produces,optional"`
	ProducesOverridable []string        `hcl:"produces_overridable,optional"`
	ProducesWeak        []string        `hcl:"produces_weak,optional"`
	NonEssential        bool            `hcl:"non_essential,optional"`
	Arguments           *argumentsBlock `hcl:"arguments,block"`
	DefRange            hcl.Range       `hcl:",def_range"`
}

type argumentsBlock struct {
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}
