package protocol

import (
	"strings"

	"daemonproxy-go/internal/bytestr"
)

// ParseCommand splits a line into its command verb and whitespace-
// separated arguments. Blank lines and lines beginning with '#', ' ',
// or '\t' (the config-file comment convention spec.md §4.F carries
// over to the wire protocol) parse to an empty verb, which the
// dispatcher silently ignores. Arguments are split on any run of
// spaces or tabs, so an argument cannot contain a space and empty
// tab-separated fields are dropped.
func ParseCommand(line string) (verb string, args []string) {
	if bytestr.IsCommentOrBlank(bytestr.Range(line)) {
		return "", nil
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
