package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/mover/pkg/uring"
)

// symbolicFlags maps flag names accepted in ring.flags to their bit values.
var symbolicFlags = map[string]uint32{
	"iopoll":    uring.SetupIOPoll,
	"sqpoll":    uring.SetupSQPoll,
	"sq_aff":    uring.SetupSQAff,
	"cqsize":    uring.SetupCQSize,
	"clamp":     uring.SetupClamp,
	"attach_wq": uring.SetupAttachWQ,
}

// ParseSetupFlags parses the ring.flags setting.
//
// The value is either a raw numeric bitmask ("18") or a comma-separated list
// of symbolic names ("clamp,sqpoll"). Empty segments are skipped; an
// unrecognized name is an error. The empty string parses to 0.
func ParseSetupFlags(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	// Numeric form takes precedence.
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}

	var flags uint32
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit, ok := symbolicFlags[name]
		if !ok {
			return 0, fmt.Errorf("unknown ring flag: %q", name)
		}
		flags |= bit
	}

	return flags, nil
}
