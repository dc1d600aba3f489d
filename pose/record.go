// Package pose captures bone transforms relative to a root bone into a
// .pose record and applies such records back onto an armature.
package pose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

const (
	FileExtension = ".pose"
	TypeName      = "Mektools Pose"
	FileVersion   = 2

	// DefaultRoot is the bone every record is relative to.
	DefaultRoot = "n_throw"
)

var (
	ErrRootNotFound = errors.New("root bone not found")
	ErrInvalidFile  = errors.New("invalid pose file")
)

// Fields selects which parts of a transform are captured or applied.
type Fields struct {
	Position bool
	Rotation bool
	Scale    bool
}

var (
	AllFields    = Fields{Position: true, Rotation: true, Scale: true}
	RotationOnly = Fields{Rotation: true}
)

func (f Fields) IsZero() bool {
	return !f.Position && !f.Rotation && !f.Scale
}

// Transform is one bone entry. Absent fields are nil.
type Transform struct {
	Position *geom.Vector3
	Rotation *geom.Quaternion
	Scale    *geom.Vector3
}

// Record maps suffix-stripped bone names to root-relative transforms.
type Record struct {
	FileExtension string
	TypeName      string
	FileVersion   int
	Bones         map[string]*Transform
}

func NewRecord() *Record {
	return &Record{
		FileExtension: FileExtension,
		TypeName:      TypeName,
		FileVersion:   FileVersion,
		Bones:         map[string]*Transform{},
	}
}

// Lookup returns the entry for a bone name, ignoring any .NNN suffix.
func (r *Record) Lookup(name string) (*Transform, bool) {
	t, ok := r.Bones[armature.StripSuffix(name)]
	return t, ok && t != nil
}

func formatVector(v *geom.Vector3, prec int) string {
	return strings.Join([]string{
		strconv.FormatFloat(v.X, 'f', prec, 64),
		strconv.FormatFloat(v.Y, 'f', prec, 64),
		strconv.FormatFloat(v.Z, 'f', prec, 64),
	}, ", ")
}

// formatQuaternion writes X, Y, Z, W.
func formatQuaternion(q *geom.Quaternion) string {
	return strings.Join([]string{
		strconv.FormatFloat(q.X, 'f', 6, 64),
		strconv.FormatFloat(q.Y, 'f', 6, 64),
		strconv.FormatFloat(q.Z, 'f', 6, 64),
		strconv.FormatFloat(q.W, 'f', 6, 64),
	}, ", ")
}

func parseFloats(s string, n int) ([]geom.Element, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d components, got %d", n, len(parts))
	}
	r := make([]geom.Element, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		r[i] = v
	}
	return r, nil
}

func parseVector(s string) (*geom.Vector3, error) {
	f, err := parseFloats(s, 3)
	if err != nil {
		return nil, err
	}
	return geom.NewVector3(f[0], f[1], f[2]), nil
}

func parseQuaternion(s string) (*geom.Quaternion, error) {
	f, err := parseFloats(s, 4)
	if err != nil {
		return nil, err
	}
	return geom.NewQuaternion(f[0], f[1], f[2], f[3]).Normalize(), nil
}
