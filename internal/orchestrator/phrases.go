package orchestrator

import "strings"

var closePhrases = []string{
	"close window",
	"close the window",
	"close chat",
	"close the chat",
	"exit chat",
	"exit window",
	"close this",
	"that's all",
	"done with this",
	"go back",
	"never mind",
	"nevermind",
}

var splitPhrases = []string{
	"new window",
	"spawn window",
	"split window",
	"open new window",
	"spawn new window",
}

func normalize(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".")
}

func containsAny(text string, phrases []string) bool {
	n := normalize(text)
	for _, p := range phrases {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// IsClose reports whether text asks to close the focused panel
func IsClose(text string) bool {
	return containsAny(text, closePhrases)
}

// IsSplit reports whether text asks for a new panel
func IsSplit(text string) bool {
	return containsAny(text, splitPhrases)
}
