package app

import (
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/modules/changelog"
	"github.com/vk/taskgrid/modules/concat"
	"github.com/vk/taskgrid/modules/copy_files"
	"github.com/vk/taskgrid/modules/delete_files"
	"github.com/vk/taskgrid/modules/download"
	execmod "github.com/vk/taskgrid/modules/exec"
	"github.com/vk/taskgrid/modules/git"
	"github.com/vk/taskgrid/modules/inject"
	"github.com/vk/taskgrid/modules/notify"
	"github.com/vk/taskgrid/modules/print"
	"github.com/vk/taskgrid/modules/publish"
	"github.com/vk/taskgrid/modules/reload"
	"github.com/vk/taskgrid/modules/replace"
	"github.com/vk/taskgrid/modules/serve"
	"github.com/vk/taskgrid/modules/version"
)

// coreModules is the definitive list of all modules that are compiled into
// the taskgrid binary.
var coreModules = []registry.Module{
	&changelog.Module{},
	&concat.Module{},
	&copy_files.Module{},
	&delete_files.Module{},
	&download.Module{},
	&execmod.Module{},
	&git.Module{},
	&inject.Module{},
	&notify.Module{},
	&print.Module{},
	&publish.Module{},
	&reload.Module{},
	&replace.Module{},
	&serve.Module{},
	&version.Module{},
}
