package app

import (
	"github.com/specialistvlad/buildchain/internal/registry"
	"github.com/specialistvlad/buildchain/modules/collect"
	"github.com/specialistvlad/buildchain/modules/emit"
	"github.com/specialistvlad/buildchain/modules/env_vars"
	"github.com/specialistvlad/buildchain/modules/exec"
	"github.com/specialistvlad/buildchain/modules/http_request"
	"github.com/specialistvlad/buildchain/modules/print"
)

// coreModules is the definitive list of all modules that are compiled into
// the buildchain binary.
var coreModules = []registry.Module{
	&emit.Module{},
	&env_vars.Module{},
	&collect.Module{},
	&print.Module{},
	&exec.Module{},
	&http_request.Module{},
}
