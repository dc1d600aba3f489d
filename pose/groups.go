package pose

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/mektools/rigtools/armature"
)

const (
	GroupHair  = "Hair"
	GroupFace  = "Face"
	GroupHandL = "HandL"
	GroupHandR = "HandR"
	GroupTail  = "Tail"
	GroupGear  = "Gear"
	GroupBody  = "Body"
)

// GroupNames lists the bone groups in display order.
var GroupNames = []string{GroupHair, GroupFace, GroupHandL, GroupHandR, GroupTail, GroupGear, GroupBody}

var ErrUnknownGroup = errors.New("unknown bone group")

//go:embed bone_groups.yaml
var defaultGroupsData []byte

// Groups maps a group name to bone names. An entry ending in '*' matches
// every bone with that prefix.
type Groups map[string][]string

func DefaultGroups() Groups {
	g, err := ParseGroups(defaultGroupsData)
	if err != nil {
		panic(err)
	}
	return g
}

// ParseGroups reads group data. JSON input is accepted as well.
func ParseGroups(data []byte) (Groups, error) {
	var g Groups
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}

func LoadGroups(path string) (Groups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGroups(data)
}

func matchEntry(entry, name string) bool {
	if p, ok := strings.CutSuffix(entry, "*"); ok {
		return strings.HasPrefix(name, p)
	}
	return entry == name
}

// Select returns the bones of a in the given groups, in hierarchy order.
// Hair also selects every bone whose name starts with j_ex.
func (g Groups) Select(a *armature.Armature, groups ...string) ([]string, error) {
	var entries []string
	for _, name := range groups {
		e, ok := g[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, name)
		}
		entries = append(entries, e...)
		if name == GroupHair {
			entries = append(entries, "j_ex*")
		}
	}
	var r []string
	for _, b := range a.HierarchyOrder() {
		key := armature.StripSuffix(b.Name)
		for _, e := range entries {
			if matchEntry(e, key) {
				r = append(r, b.Name)
				break
			}
		}
	}
	return r, nil
}

type ExportOptions struct {
	Root string
	// Groups limits the export. Empty exports every bone.
	Groups []string
	Fields Fields
	// BoneGroups defaults to DefaultGroups.
	BoneGroups Groups
}

// Export captures a and writes the record to path.
func Export(path string, a *armature.Armature, opts ExportOptions) (*Record, error) {
	copts := CaptureOptions{Root: opts.Root, Fields: opts.Fields}
	if len(opts.Groups) > 0 {
		groups := opts.BoneGroups
		if groups == nil {
			groups = DefaultGroups()
		}
		bones, err := groups.Select(a, opts.Groups...)
		if err != nil {
			return nil, err
		}
		if len(bones) == 0 {
			return nil, ErrNothingSelected
		}
		copts.Bones = bones
	}
	rec, err := Capture(a, copts)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
