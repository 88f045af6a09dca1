// Package version implements the `version` action, which bumps the version
// field of a JSON manifest such as package.json. The rest of the manifest is
// left byte-for-byte untouched.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
	"golang.org/x/mod/semver"
)

// Snapshot is the pre-release suffix of development versions.
const Snapshot = "-SNAPSHOT"

// DefaultManifest is used when no manifest argument is given.
const DefaultManifest = "package.json"

var versionField = regexp.MustCompile(`("version"\s*:\s*")([^"]*)(")`)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the version action.
type Input struct {
	Manifest string `arg:"manifest"`
	// Bump is one of major, minor, patch, snapshot or release.
	Bump string `arg:"bump"`
	// Set writes an explicit version instead of bumping.
	Set string `arg:"set"`
}

// OnRunVersion is the handler for the `version` action.
func OnRunVersion(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	manifest := input.Manifest
	if manifest == "" {
		manifest = DefaultManifest
	}
	path := env.Path(manifest)

	current, err := Read(path)
	if err != nil {
		return err
	}

	next := input.Set
	switch {
	case next != "":
		if !semver.IsValid("v" + next) {
			return fmt.Errorf("invalid version %q", next)
		}
	case input.Bump == "":
		return fmt.Errorf("either bump or set is required")
	default:
		next, err = Bump(current, input.Bump)
		if err != nil {
			return err
		}
	}

	if err := write(path, next); err != nil {
		return err
	}
	logger.Info("Version updated", "manifest", manifest, "from", current, "to", next)
	return nil
}

// Read returns the version field of a JSON manifest.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}
	var m struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Version == "" {
		return "", fmt.Errorf("manifest %s has no version", path)
	}
	return m.Version, nil
}

func write(path, version string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loc := versionField.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("manifest %s has no version field", path)
	}
	out := make([]byte, 0, len(data)+len(version))
	out = append(out, data[:loc[4]]...)
	out = append(out, version...)
	out = append(out, data[loc[5]:]...)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, info.Mode().Perm())
}

// Bump computes the next version. major, minor and patch drop the snapshot
// suffix before incrementing; snapshot appends it; release removes it.
func Bump(current, kind string) (string, error) {
	base := strings.TrimSuffix(current, Snapshot)
	if !semver.IsValid("v" + base) {
		return "", fmt.Errorf("invalid current version %q", current)
	}

	switch kind {
	case "snapshot":
		return base + Snapshot, nil
	case "release":
		return base, nil
	case "major", "minor", "patch":
	default:
		return "", fmt.Errorf("unknown bump %q (want major, minor, patch, snapshot or release)", kind)
	}

	core := strings.TrimPrefix(semver.Canonical("v"+base), "v")
	if pre := semver.Prerelease("v" + base); pre != "" {
		core = strings.TrimSuffix(core, pre)
	}
	parts := strings.SplitN(core, ".", 3)
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid current version %q", current)
		}
		nums[i] = n
	}

	switch kind {
	case "major":
		nums[0], nums[1], nums[2] = nums[0]+1, 0, 0
	case "minor":
		nums[1], nums[2] = nums[1]+1, 0
	case "patch":
		nums[2]++
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("version", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunVersion,
	})
}
