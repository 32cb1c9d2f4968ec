package enforce

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Error kinds. Callers wrap them with Errorf and test with errors.Is.
var (
	ErrRange           = errors.New("out of range")
	ErrKeyInUse        = errors.New("key in use")
	ErrPermission      = errors.New("permission denied")
	ErrFile            = errors.New("file error")
	ErrNullPointer     = errors.New("null pointer")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrQueue           = errors.New("queue error")
	ErrResultNotReady  = errors.New("result not ready")
	ErrMessage         = errors.New("message error")
)

// Process exit hook, replaced by tests that exercise fatal paths.
var Exit = os.Exit

// Errorf wraps kind with a formatted context message.
func Errorf(kind error, format string, args ...interface{}) error {
	return xerrors.Errorf(format+": %w", append(args, kind)...)
}

// Fatal logs an unrecoverable protocol violation and exits. Peers are left to fail on their closed channels.
func Fatal(err error, msg string) {
	log.Error().Err(err).Msg("FATAL: " + msg)
	Exit(1)
	panic(err) // Only reached when Exit was replaced.
}

// ENFORCE helper to halt program on error
func ENFORCE(query interface{}, args ...interface{}) {
	switch t := query.(type) {
	case bool:
		if !t {
			Fatal(ErrInvalidArgument, fmt.Sprint("ENFORCE: ", args))
		}
	case error:
		if t != nil {
			Fatal(t, fmt.Sprint("ENFORCE: ", args))
		}
	case string:
		Fatal(errors.New(t), fmt.Sprint("ENFORCE: ", args))
	case nil:
		// Allow nil to pass since we sometimes do enforce.ENFORCE(err) to ensure there is no error
	default:
		Fatal(ErrInvalidArgument, fmt.Sprintf("ENFORCE: incorrect usage of enforce with type %T - %v - %v", t, t, args))
	}
}
