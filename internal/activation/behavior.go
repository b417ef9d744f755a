package activation

import "fmt"

// Behavior is what an object does when activated. The set of variants is
// closed: Translate, Rotate, Link, Door, ExitDoor and Unknown.
type Behavior interface {
	fmt.Stringer
	behavior()
}

// Translate slides the object's translate mover to its other end.
type Translate struct{}

// Rotate swings the object's rotate mover to its other end.
type Rotate struct{}

// Link does nothing itself; it only forwards activation to its chain target.
type Link struct{}

// Door is a rotate mover with the engine's default swing.
type Door struct{}

// ExitDoor leaves the current area for the given map location.
type ExitDoor struct {
	Region   int
	Location int
}

// Unknown keeps an action record whose type byte is not recognised.
type Unknown struct {
	Type byte
	Raw  [5]byte
}

func (Translate) behavior() {}
func (Rotate) behavior()    {}
func (Link) behavior()      {}
func (Door) behavior()      {}
func (ExitDoor) behavior()  {}
func (Unknown) behavior()   {}

func (Translate) String() string { return "translate" }
func (Rotate) String() string    { return "rotate" }
func (Link) String() string      { return "link" }
func (Door) String() string      { return "door" }

func (e ExitDoor) String() string {
	return fmt.Sprintf("exit(region=%d, location=%d)", e.Region, e.Location)
}

func (u Unknown) String() string {
	return fmt.Sprintf("unknown(0x%02x % x)", u.Type, u.Raw)
}
