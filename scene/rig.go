package scene

import (
	"errors"
	"fmt"
)

var ErrInvalidRigInfo = errors.New("invalid rig metadata")

type ArmatureType int

const (
	ArmatureVanilla ArmatureType = iota + 1
	ArmatureMekrig
)

func (t ArmatureType) String() string {
	switch t {
	case ArmatureVanilla:
		return "vanilla"
	case ArmatureMekrig:
		return "mekrig"
	default:
		return "unknown"
	}
}

func ParseArmatureType(s string) (ArmatureType, error) {
	switch s {
	case "vanilla", "Vanilla":
		return ArmatureVanilla, nil
	case "mekrig", "Mekrig":
		return ArmatureMekrig, nil
	}
	return 0, fmt.Errorf("%w: armature type %q", ErrInvalidRigInfo, s)
}

// RigInfo is the typed metadata attached to armature objects.
type RigInfo struct {
	Type      ArmatureType
	Actor     bool
	ActorName string
	Variant   string
}

func (r RigInfo) Validate() error {
	if r.Type != ArmatureVanilla && r.Type != ArmatureMekrig {
		return fmt.Errorf("%w: armature type %d", ErrInvalidRigInfo, int(r.Type))
	}
	if r.Actor && r.ActorName == "" {
		return fmt.Errorf("%w: actor without a name", ErrInvalidRigInfo)
	}
	return nil
}

type Actor struct {
	Handle Handle
	Name   string
	Type   string
}

// Actors lists every armature object, the way the actor panel refreshes it.
func (s *Scene) Actors() []Actor {
	var r []Actor
	for _, o := range s.Armatures() {
		a := Actor{Handle: o.handle, Name: "Unknown Armature", Type: "Unknown"}
		if info, ok := o.Rig(); ok && info.Actor {
			a.Name = info.ActorName
			a.Type = info.Type.String()
		}
		r = append(r, a)
	}
	return r
}

// DeleteActor removes the armature object behind an actor entry.
func (s *Scene) DeleteActor(h Handle) error {
	o, ok := s.Get(h)
	if !ok {
		return ErrGone
	}
	if o.Kind != KindArmature {
		return fmt.Errorf("%s is not an armature", o.Name)
	}
	return s.Remove(h)
}

func (s *Scene) Pin(h Handle) error {
	if !s.Alive(h) {
		return ErrGone
	}
	for _, p := range s.Pins {
		if p == h {
			return nil
		}
	}
	s.Pins = append(s.Pins, h)
	return nil
}

func (s *Scene) Unpin(h Handle) {
	for i, p := range s.Pins {
		if p == h {
			s.Pins = append(s.Pins[:i], s.Pins[i+1:]...)
			return
		}
	}
}

// CleanupPins drops pins whose objects are gone.
func (s *Scene) CleanupPins() {
	s.Pins = s.Live(s.Pins)
}
