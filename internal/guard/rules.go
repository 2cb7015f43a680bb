package guard

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// maxEchoLen bounds how much of an offending command a rejection message
// echoes back.
const maxEchoLen = 120

// retiredTools maps tool names that no longer exist to their replacements.
var retiredTools = map[string]struct {
	Replacement string
	Example     string
}{
	"spawn_swarm": {
		Replacement: "dispatch_swarm",
		Example:     `dispatch_swarm with tasks "implementer: add input validation to the signup form"`,
	},
}

// AliasGuard rejects calls to retired tool names with guidance naming the
// replacement. The retired tool never executes.
type AliasGuard struct{}

func (g *AliasGuard) Name() string { return "alias" }

func (g *AliasGuard) Check(_ context.Context, call *ToolCall) error {
	retired, ok := retiredTools[call.Tool]
	if !ok {
		return nil
	}
	return &Violation{
		Guard: g.Name(),
		Message: fmt.Sprintf("%s has been removed; use %s instead, e.g. %s",
			call.Tool, retired.Replacement, retired.Example),
	}
}

// commandPattern is one high-risk command shape.
type commandPattern struct {
	reason string
	re     *regexp.Regexp
}

var destructivePatterns = []commandPattern{
	{
		reason: "forced remote history rewrite",
		re:     regexp.MustCompile(`(?i)\bgit\s+push\b[^;|&]*\s(--force|-f)(\s|$)`),
	},
	{
		reason: "destructive SQL DDL",
		// Bare TRUNCATE collides with coreutils truncate(1), so only the
		// SQL form is matched.
		re: regexp.MustCompile(`(?i)\b(drop\s+(table|database)|truncate\s+table)\b`),
	},
	{
		reason: "raw block-device write",
		re:     regexp.MustCompile(`(?i)\bdd\b[^;|&]*\bof=/dev/|\bmkfs(\.\w+)?\b|>\s*/dev/sd[a-z]`),
	},
}

// DestructiveGuard rejects command-executing tool calls whose command string
// matches a high-risk pattern. The rejection echoes the command, truncated,
// so the worker sees exactly what was blocked.
type DestructiveGuard struct{}

func (g *DestructiveGuard) Name() string { return "destructive" }

func (g *DestructiveGuard) Check(_ context.Context, call *ToolCall) error {
	if !execTools[call.Tool] {
		return nil
	}
	command := stringArg(call.Args, "command")
	if command == "" {
		return nil
	}

	if reason, hit := matchDestructive(command); hit {
		return &Violation{
			Guard: g.Name(),
			Message: fmt.Sprintf("destructive command blocked (%s): %s",
				reason, truncate(command, maxEchoLen)),
		}
	}
	return nil
}

func matchDestructive(command string) (string, bool) {
	if recursiveForceDelete(command) {
		return "recursive force delete", true
	}
	for _, p := range destructivePatterns {
		if p.re.MatchString(command) {
			return p.reason, true
		}
	}
	return "", false
}

// commandSeparators splits a shell string into its chained segments.
var commandSeparators = regexp.MustCompile(`[;|&]+`)

// recursiveForceDelete reports whether the command contains an rm invocation
// carrying both recursive and force flags, in any spelling or order, that
// targets anything outside /tmp.
func recursiveForceDelete(command string) bool {
	for _, segment := range commandSeparators.Split(command, -1) {
		fields := strings.Fields(segment)
		if len(fields) > 0 && fields[0] == "sudo" {
			fields = fields[1:]
		}
		if len(fields) == 0 || fields[0] != "rm" {
			continue
		}

		var recursive, force bool
		var targets []string
		for _, f := range fields[1:] {
			switch {
			case f == "--recursive":
				recursive = true
			case f == "--force":
				force = true
			case strings.HasPrefix(f, "--"):
				// other long flag
			case strings.HasPrefix(f, "-") && len(f) > 1:
				if strings.ContainsAny(f, "rR") {
					recursive = true
				}
				if strings.Contains(f, "f") {
					force = true
				}
			default:
				targets = append(targets, f)
			}
		}
		if !recursive || !force {
			continue
		}
		if len(targets) == 0 {
			return true
		}
		for _, t := range targets {
			if t != "/tmp" && !strings.HasPrefix(t, "/tmp/") {
				return true
			}
		}
	}
	return false
}

// secretExtensions are file extensions that mark credential material.
var secretExtensions = map[string]bool{
	".pem": true,
	".key": true,
	".p12": true,
	".pfx": true,
}

// SecretGuard rejects file-reading tool calls that target secret-bearing
// files.
type SecretGuard struct{}

func (g *SecretGuard) Name() string { return "secret" }

func (g *SecretGuard) Check(_ context.Context, call *ToolCall) error {
	if !readTools[call.Tool] {
		return nil
	}
	path := stringArg(call.Args, "file_path")
	if path == "" {
		return nil
	}
	if isSecretPath(path) {
		return &Violation{
			Guard:   g.Name(),
			Message: fmt.Sprintf("reading %s is blocked: the file may contain credentials", path),
		}
	}
	return nil
}

func isSecretPath(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == ".env" || strings.HasPrefix(base, ".env."):
		return true
	case base == "credentials.json":
		return true
	case strings.HasPrefix(base, "id_rsa"):
		return true
	}
	return secretExtensions[strings.ToLower(filepath.Ext(base))]
}

// personaExtractors pull the delegation target out of the call args. Callers
// have drifted between field names, so each strategy is tried in order and
// the first non-empty match wins.
var personaExtractors = []func(args map[string]any) string{
	func(args map[string]any) string { return stringArg(args, "subagent_type") },
	func(args map[string]any) string { return stringArg(args, "agent") },
}

// DelegationGuard rejects delegation calls that name a persona only reachable
// through a higher-level entry point. The rejection names that entry point.
type DelegationGuard struct {
	Agents interface {
		Restricted(name string) (entryPoint string, restricted bool)
	}
}

func (g *DelegationGuard) Name() string { return "delegation" }

func (g *DelegationGuard) Check(_ context.Context, call *ToolCall) error {
	if !delegationTools[call.Tool] || g.Agents == nil {
		return nil
	}

	var persona string
	for _, extract := range personaExtractors {
		if persona = extract(call.Args); persona != "" {
			break
		}
	}
	if persona == "" {
		return nil
	}

	persona = strings.ToLower(persona)
	entryPoint, restricted := g.Agents.Restricted(persona)
	if !restricted {
		return nil
	}
	return &Violation{
		Guard: g.Name(),
		Message: fmt.Sprintf("%s cannot be delegated to directly; invoke it through %s",
			persona, entryPoint),
	}
}
