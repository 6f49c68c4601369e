package toolexec

import (
	"fmt"
	"regexp"
)

// destructiveRule describes a shell command pattern blocked unconditionally,
// regardless of worktree containment.
type destructiveRule struct {
	pattern *regexp.Regexp
	reason  string
}

var destructivePatterns = compileDestructivePatterns([]struct {
	pattern string
	reason  string
}{
	{`\brm\s+.*-[a-zA-Z]*[rR]`, "recursive remove"},
	{`\brm\s+.*-[a-zA-Z]*[fF]`, "force remove"},
	{`\bdd\b\s+.*\bof=`, "raw disk write (dd)"},
	{`\bmkfs\b`, "filesystem format"},
	{`\bfdisk\b`, "partition edit"},
	{`:\(\)\s*\{`, "fork bomb"},
	{`>/dev/sd[a-z]`, "raw device write"},
	{`\bchmod\s+.*-[a-zA-Z]*[rR]`, "recursive chmod"},
	{`\bchown\s+.*-[a-zA-Z]*[rR]`, "recursive chown"},
	{`\bsudo\b`, "privilege escalation"},
	{`\bsu\s`, "switch user"},
	{`\bgit\s+push\b`, "network push outside the loop's own worktree"},
})

func compileDestructivePatterns(raw []struct {
	pattern string
	reason  string
}) []destructiveRule {
	rules := make([]destructiveRule, len(raw))
	for i, r := range raw {
		rules[i] = destructiveRule{pattern: regexp.MustCompile(r.pattern), reason: r.reason}
	}
	return rules
}

// matchDestructivePattern checks a command string against the denylist,
// returning the matched rule or nil if the command is safe.
func matchDestructivePattern(command string) *destructiveRule {
	for i := range destructivePatterns {
		if destructivePatterns[i].pattern.MatchString(command) {
			return &destructivePatterns[i]
		}
	}
	return nil
}

// checkCommand rejects a shell command string that matches the denylist.
func checkCommand(command string) error {
	if rule := matchDestructivePattern(command); rule != nil {
		return fmt.Errorf("toolexec: blocked command (%s)", rule.reason)
	}
	return nil
}
