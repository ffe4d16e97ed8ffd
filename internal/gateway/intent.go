package gateway

import (
	"regexp"
	"strconv"
	"strings"
)

type intentKind int

const (
	intentNone intentKind = iota
	intentAdd
	intentComplete
	intentDelete
)

// intent is the parsed task command. index is 1-based into the task list as
// fetched at the start of the request, not a database id. A stale list (for
// example a concurrent request reordering tasks) can make the index point at
// a different row; that positional addressing is kept deliberately.
type intent struct {
	kind  intentKind
	text  string
	index int
}

var (
	addPrefixes      = []string{"add task ", "remind me to "}
	completePrefixes = []string{"complete task ", "finish task ", "done with task "}
	deletePrefixes   = []string{"delete task ", "remove task "}

	firstInteger = regexp.MustCompile(`\d+`)
)

// detectIntent lower-cases the message and matches it against the fixed
// command prefixes. Anything else is a plain chat message.
func detectIntent(content string) intent {
	lower := strings.ToLower(strings.TrimSpace(content))

	for _, p := range addPrefixes {
		if rest, ok := strings.CutPrefix(lower, p); ok {
			text := strings.TrimSpace(rest)
			if text == "" {
				return intent{kind: intentNone}
			}
			return intent{kind: intentAdd, text: text}
		}
	}
	for _, p := range completePrefixes {
		if rest, ok := strings.CutPrefix(lower, p); ok {
			if idx, ok := parseIndex(rest); ok {
				return intent{kind: intentComplete, index: idx}
			}
			return intent{kind: intentNone}
		}
	}
	for _, p := range deletePrefixes {
		if rest, ok := strings.CutPrefix(lower, p); ok {
			if idx, ok := parseIndex(rest); ok {
				return intent{kind: intentDelete, index: idx}
			}
			return intent{kind: intentNone}
		}
	}
	return intent{kind: intentNone}
}

// parseIndex pulls the first integer out of the text after the prefix.
func parseIndex(rest string) (int, bool) {
	match := firstInteger.FindString(rest)
	if match == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return idx, true
}
