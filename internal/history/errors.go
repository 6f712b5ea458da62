package history

import "errors"

// Sentinel errors for recorder construction and registration. All of them
// are fatal; the recorder never retries.
var (
	// ErrPathNotFound is returned when the neighbour-directory lookup fails
	// at construction.
	ErrPathNotFound = errors.New("neighbour directory not found")

	// ErrDuplicateName is returned when a variable with the same fully
	// qualified name is already registered. Registration leaves no partial
	// state behind.
	ErrDuplicateName = errors.New("variable name already registered")

	// ErrUnsupportedType is returned for element types outside the
	// recognized set.
	ErrUnsupportedType = errors.New("unsupported element type")

	// ErrEmptyHistory is returned by Prepare when no variable has been
	// registered.
	ErrEmptyHistory = errors.New("no variables connected to the history module")

	// ErrAlreadyRunning is returned when registration is attempted after
	// the update loop has started.
	ErrAlreadyRunning = errors.New("history module is already running")
)
