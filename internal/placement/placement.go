// Package placement stores the world position and orientation of every placed object.
package placement

import (
	"errors"
	"fmt"

	"github.com/Faultbox/dfworld/internal/sparse"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// ErrNotFound is returned by Get for objects that were never placed.
var ErrNotFound = errors.New("no placement for object")

// Pose is an object's orientation and position.
type Pose struct {
	Orientation math.Quat
	Point       math.Vec3
}

// Matrix returns the model matrix of the pose: rotate, then translate.
func (p Pose) Matrix() math.Mat4 {
	return math.Translation(p.Point).Mul(math.FromQuat(p.Orientation))
}

// Store holds one Pose per object. It only stores; callers that move an
// object are responsible for telling the renderer.
type Store struct {
	poses *sparse.Store[Pose]
}

// New returns an empty placement store.
func New() *Store {
	return &Store{poses: sparse.New[Pose]()}
}

func (s *Store) pose(id objid.ID) *Pose {
	if p, ok := s.poses.Find(id); ok {
		return p
	}
	return s.poses.Insert(id, Pose{Orientation: math.QuatIdentity()})
}

// SetPos sets both position and orientation.
func (s *Store) SetPos(id objid.ID, pt math.Vec3, ori math.Quat) {
	s.poses.Insert(id, Pose{Orientation: ori, Point: pt})
}

// SetPosEuler sets the position and an orientation built from file angle units.
func (s *Store) SetPosEuler(id objid.ID, pt math.Vec3, rot math.Vec3) {
	s.SetPos(id, pt, math.BuildRotation(rot))
}

// SetPoint sets the position, keeping the current orientation.
func (s *Store) SetPoint(id objid.ID, pt math.Vec3) {
	s.pose(id).Point = pt
}

// SetRotate sets the orientation, keeping the current position.
func (s *Store) SetRotate(id objid.ID, ori math.Quat) {
	s.pose(id).Orientation = ori
}

// SetRotateEuler sets the orientation from file angle units.
func (s *Store) SetRotateEuler(id objid.ID, rot math.Vec3) {
	s.SetRotate(id, math.BuildRotation(rot))
}

// Get returns the pose of id.
func (s *Store) Get(id objid.ID) (Pose, error) {
	p, ok := s.poses.Find(id)
	if !ok {
		return Pose{}, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return *p, nil
}

// Has reports whether id has been placed.
func (s *Store) Has(id objid.ID) bool {
	return s.poses.Has(id)
}

// Deallocate drops the poses of ids. Unknown ids are ignored.
func (s *Store) Deallocate(ids ...objid.ID) {
	for _, id := range ids {
		s.poses.Remove(id)
	}
}

// Len returns the number of placed objects.
func (s *Store) Len() int {
	return s.poses.Len()
}
