package workspace

import "fmt"

// State is the permission lifecycle of the workspace directory.
//
//	Uninitialized --Init--> NoHandle | HandlePresentUngranted | Ready
//	NoHandle --Request--> Ready
//	HandlePresentUngranted --Resume--> Ready
//	Ready --Clear--> NoHandle
type State int

const (
	Uninitialized State = iota
	NoHandle
	HandlePresentUngranted
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case NoHandle:
		return "no_handle"
	case HandlePresentUngranted:
		return "handle_present_ungranted"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
