package sortedwindow

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// Comparator is a function that compares two values
// return 0 if they are equal
// return -1 if a < b
// return 1 if a > b
type Comparator func(a, b interface{}) int

type option func(*SortedMinWindow)

// WithLimit sets the size limit for the
// sorted window.
func WithLimit(l int) option {
	return func(sortedWindow *SortedMinWindow) {
		sortedWindow.limit = l
	}
}

// SortedMinWindow keeps the smallest values seen in a
// stream. If limit is positive it sets the window size.
// If limit is negative or zero there is no limit and the
// window will hold every value inserted. Values that
// compare equal are the same element, so callers that
// need duplicates must make them distinguishable.
type SortedMinWindow struct {
	compare Comparator
	limit   int
	tree    *redblacktree.Tree
}

// New creates a new SortedMinWindow.
func New(comparator Comparator, opts ...option) *SortedMinWindow {
	sw := &SortedMinWindow{
		compare: comparator,
		limit:   -1,
	}

	for _, opt := range opts {
		opt(sw)
	}

	sw.tree = redblacktree.NewWith(utils.Comparator(comparator))

	return sw
}

// Insert attempts to insert obj into the window. If limit is <= 0
// it will be inserted. If limit > 0 and size has not yet hit limit then
// it will be inserted. If limit > 0 and size has hit limit and obj >=
// the max value in the window then it will not be inserted.
// If limit > 0 and size has hit limit and obj < the max value in
// the window then it will be inserted and the max value will be removed.
func (sortedWindow *SortedMinWindow) Insert(obj interface{}) {
	if sortedWindow.limit <= 0 || sortedWindow.tree.Size() < sortedWindow.limit {
		sortedWindow.tree.Put(obj, nil)
	} else if sortedWindow.compare(obj, sortedWindow.tree.Right().Key) < 0 {
		sortedWindow.tree.Remove(sortedWindow.tree.Right().Key)
		sortedWindow.tree.Put(obj, nil)
	}
}

// Max returns the largest value in the window. With a limit
// of N and at least N inserts this is the N-th smallest
// value seen. ok is false if the window is empty.
func (sortedWindow *SortedMinWindow) Max() (value interface{}, ok bool) {
	if sortedWindow.tree.Empty() {
		return nil, false
	}

	return sortedWindow.tree.Right().Key, true
}

// Size returns the number of elements in the window
func (sortedWindow *SortedMinWindow) Size() int {
	return sortedWindow.tree.Size()
}
