package app

// ParentFunc returns the parent of id and whether it has one.
type ParentFunc func(id int64) (parent int64, ok bool, err error)

// HasCycle walks the parent chain from start with a tortoise moving one link and a hare
// moving two links per step. The chain is cyclic iff they meet.
func HasCycle(start int64, parentOf ParentFunc) (bool, error) {
	slow, fast := start, start
	for {
		next, ok, err := parentOf(fast)
		if err != nil || !ok {
			return false, err
		}
		fast, ok, err = parentOf(next)
		if err != nil || !ok {
			return false, err
		}
		slow, _, err = parentOf(slow)
		if err != nil {
			return false, err
		}
		if slow == fast {
			return true, nil
		}
	}
}
