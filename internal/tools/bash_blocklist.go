package tools

import (
	"regexp"
	"strings"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
)

// blockedSubstrings are rejected anywhere in the lowercased command.
var blockedSubstrings = []string{
	"rm -rf",
	"rm -r /",
	"sudo ",
	"mkfs",
	"dd if=",
	"> /dev/sd",
	":(){:|:&};:",
	"chmod -r 777 /",
	"shutdown",
	"reboot",
	"init 0",
	"init 6",
	"find / -delete",
	"find / -exec rm",
	// long-running servers never return within the command timeout
	"http.server",
	"simplehttpserver",
}

// networkExfilPatterns are matched case-sensitively
var networkExfilPatterns = []string{
	"/dev/tcp/",
	"/dev/udp/",
}

// obfuscationPatterns catch encoded payloads and download-and-run pipelines.
var obfuscationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`base64\s+(-d|--decode)`),
	regexp.MustCompile(`xxd\s+-r.*\|\s*(bash|sh|zsh|exec)`),
	regexp.MustCompile(`printf\s+.*\\x[0-9a-fA-F].*\|\s*(bash|sh|zsh|exec)`),
	regexp.MustCompile(`python[23]?\s+-c\s+.*__(import|eval|exec)__`),
	regexp.MustCompile(`perl\s+-e\s+.*system\s*\(`),
	regexp.MustCompile(`(curl|wget)\b.*\|\s*(bash|sh|zsh|exec)\b`),
}

// evasionPatterns catch backslash, hex-escape and eval smuggling.
var evasionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`r\\m\s`),
	regexp.MustCompile(`s\\hutdown`),
	regexp.MustCompile(`re\\boot`),
	regexp.MustCompile(`mk\\fs`),
	regexp.MustCompile(`\$'\\x[0-9a-fA-F]{2}`),
	regexp.MustCompile(`eval\s+.*\$`),
}

// CheckCommandSafety returns a CommandBlocked error naming the first rule
// the command trips, or nil.
func CheckCommandSafety(command string) error {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)

	if strings.HasSuffix(trimmed, "&") && !strings.HasSuffix(trimmed, "&&") {
		return skerrors.CommandBlocked("background processes are not allowed")
	}
	for _, pattern := range blockedSubstrings {
		if strings.Contains(lower, pattern) {
			return skerrors.CommandBlocked(pattern)
		}
	}
	for _, pattern := range networkExfilPatterns {
		if strings.Contains(command, pattern) {
			return skerrors.CommandBlocked("network redirection " + pattern)
		}
	}
	for _, re := range obfuscationPatterns {
		if re.MatchString(lower) {
			return skerrors.CommandBlocked("encoded or piped execution")
		}
	}
	for _, re := range evasionPatterns {
		if re.MatchString(command) {
			return skerrors.CommandBlocked("command evasion")
		}
	}
	return nil
}
