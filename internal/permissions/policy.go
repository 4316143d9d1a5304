package permissions

import (
	"strings"

	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
)

// Mode defines the permission checking mode
type Mode int

const (
	ModeAsk    Mode = iota // Gate execute-level tools and the configured gated set
	ModeAuto               // Gate nothing
	ModeStrict             // Gate everything that writes or executes
)

func (m Mode) String() string {
	switch m {
	case ModeAsk:
		return "ask"
	case ModeAuto:
		return "auto"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string to a Mode, defaulting to ModeAsk
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ModeAuto
	case "strict":
		return ModeStrict
	default:
		return ModeAsk
	}
}

// Policy decides which tool calls need a user's yes before they run and
// how free-text replies are read.
type Policy struct {
	mode           Mode
	gated          map[string]bool
	approvePhrases map[string]bool
}

// NewPolicy creates a policy. gatedTools are always gated outside auto
// mode; approvePhrases are the replies (besides an empty line) that approve.
func NewPolicy(mode Mode, gatedTools, approvePhrases []string) *Policy {
	p := &Policy{
		mode:           mode,
		gated:          make(map[string]bool, len(gatedTools)),
		approvePhrases: make(map[string]bool, len(approvePhrases)),
	}
	for _, t := range gatedTools {
		p.gated[t] = true
	}
	for _, ph := range approvePhrases {
		p.approvePhrases[normalizeReply(ph)] = true
	}
	return p
}

// Mode returns the current permission mode
func (p *Policy) Mode() Mode {
	return p.mode
}

// RequiresApproval reports whether a call to the tool must pass the gate.
func (p *Policy) RequiresApproval(toolName string, level tools.PermissionLevel) bool {
	switch p.mode {
	case ModeAuto:
		return false
	case ModeStrict:
		return p.gated[toolName] || level >= tools.PermissionWrite
	default:
		return p.gated[toolName] || level == tools.PermissionExecute
	}
}

// IsApproval reads a free-text reply to an approval prompt. An empty reply
// approves; anything not in the approve list denies.
func (p *Policy) IsApproval(reply string) bool {
	r := normalizeReply(reply)
	if r == "" {
		return true
	}
	return p.approvePhrases[r]
}

func normalizeReply(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!")
}
