// Package policy implements the Permission Policy (pure, deterministic,
// no I/O): it evaluates a path, URL, env key, shell command, or invoke
// target against a manifest-declared Policy and returns an allow/deny
// Decision.
package policy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// CodePermissionDenied is the error code attached to every deny Decision.
const CodePermissionDenied = "PERMISSION_DENIED"

// Decision is the result of one policy check.
type Decision struct {
	Allow   bool
	Code    string
	Reason  string
	Details map[string]any
}

func allow() Decision {
	return Decision{Allow: true}
}

func deny(reason string, details map[string]any) Decision {
	return Decision{Allow: false, Code: CodePermissionDenied, Reason: reason, Details: details}
}

// ALWAYS_ALLOWED env keys, granted regardless of policy (spec §4.1).
var alwaysAllowedEnv = map[string]bool{
	"NODE_ENV": true,
	"CI":       true,
	"DEBUG":    true,
	"TZ":       true,
	"LANG":     true,
	"LC_ALL":   true,
}

// denyPathPrefixes are matched against the normalised absolute path; a
// match on any segment is a deny regardless of any allow grant.
var denyPathPrefixes = []string{"node_modules/", ".git/", ".ssh/", "/etc/", "/usr/", "/var/"}

// denySubstrings are matched case-insensitively anywhere in the path.
var denySubstrings = []string{"credentials", "secret", "password"}

// denySuffixes are matched at the end of the path.
var denySuffixes = []string{".pem", ".key"}

// isDeniedPath implements the fixed path deny list (spec §4.1).
func isDeniedPath(absPath string) bool {
	lower := strings.ToLower(absPath)

	if strings.HasSuffix(absPath, ".env") || filepath.Base(absPath) == ".env" {
		return true
	}
	for _, sub := range denySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	for _, suf := range denySuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	for _, prefix := range denyPathPrefixes {
		if strings.Contains(absPath, "/"+prefix) || strings.HasPrefix(absPath, prefix) || strings.HasPrefix(absPath, "/"+prefix) {
			return true
		}
	}
	return false
}

// normalisePath resolves p against cwd (if relative) and lexically cleans
// it. Symlinks are not resolved — spec §9 documents this as an intentional
// limitation of the interception-level sandbox.
func normalisePath(p, cwd string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	return filepath.Clean(p)
}

// allowEntry is one compiled member of an fs allow set: either a literal
// directory/file prefix, or (when the source pattern contains glob
// metacharacters) a compiled glob matched against the normalised path.
type allowEntry struct {
	prefix string
	g      glob.Glob
}

func (e allowEntry) matches(absPath string) bool {
	if e.g != nil {
		return e.g.Match(absPath)
	}
	return absPath == e.prefix || strings.HasPrefix(absPath, e.prefix+string(filepath.Separator))
}

func compileAllowSet(cwd string, extra []string, base ...string) []allowEntry {
	entries := make([]allowEntry, 0, len(extra)+len(base))
	for _, b := range base {
		entries = append(entries, allowEntry{prefix: filepath.Clean(b)})
	}
	for _, p := range extra {
		resolved := normalisePath(p, cwd)
		if strings.ContainsAny(p, "*?") {
			if g, err := glob.Compile(resolved, '/'); err == nil {
				entries = append(entries, allowEntry{g: g})
				continue
			}
		}
		entries = append(entries, allowEntry{prefix: resolved})
	}
	return entries
}

func anyMatch(entries []allowEntry, absPath string) bool {
	for _, e := range entries {
		if e.matches(absPath) {
			return true
		}
	}
	return false
}

// CheckReadPath evaluates a read against the read allow set: {cwd} ∪
// resolve(cwd, p) for each p in allow, deny winning over any allow match.
func CheckReadPath(p, cwd string, allowPatterns []string) Decision {
	abs := normalisePath(p, cwd)

	if isDeniedPath(abs) {
		return deny("path matches the fixed deny list", map[string]any{"path": p})
	}

	entries := compileAllowSet(cwd, allowPatterns, cwd)
	if !anyMatch(entries, abs) {
		return deny("path is outside the allowed read set", map[string]any{"path": p})
	}
	return allow()
}

// CheckWritePath evaluates a write against the write allow set: {outdir}
// (defaulting to cwd/.kb/output) ∪ resolve(cwd, p) for each p in writeAllow.
func CheckWritePath(p, cwd string, writeAllow []string, outdir string) Decision {
	abs := normalisePath(p, cwd)

	if isDeniedPath(abs) {
		return deny("path matches the fixed deny list", map[string]any{"path": p})
	}

	if outdir == "" {
		outdir = filepath.Join(cwd, ".kb", "output")
	}

	entries := compileAllowSet(cwd, writeAllow, outdir)
	if !anyMatch(entries, abs) {
		return deny("path is outside the allowed write set", map[string]any{"path": p})
	}
	return allow()
}

// compileURLPattern turns one allow pattern into a regexp by escaping
// metacharacters and then mapping '*' -> ".*" and '?' -> "." (spec §4.1).
func compileURLPattern(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	escaped = strings.ReplaceAll(escaped, `\?`, ".")
	return regexp.Compile("^" + escaped + "$")
}

// CheckFetch evaluates a URL against the strict allow-list mode: a URL
// matches iff some compiled pattern matches end-to-end.
func CheckFetch(url string, allowPatterns []string) Decision {
	for _, pattern := range allowPatterns {
		re, err := compileURLPattern(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(url) {
			return allow()
		}
	}
	return deny("url is outside the allowed fetch patterns", map[string]any{
		"url":             url,
		"allowedPatterns": allowPatterns,
	})
}

// CheckFetchRelaxed implements the relaxed URL matching mode: accepts
// "*.host" suffix match, scheme-prefixed substring match, exact hostname
// match, and ".suffix" suffix match, in addition to the strict CheckFetch
// rules. Nothing in this repository calls it; the runtime fetch facade
// (internal/runtime/fetch.go) applies the strict CheckFetch.
func CheckFetchRelaxed(url string, allowPatterns []string) Decision {
	if d := CheckFetch(url, allowPatterns); d.Allow {
		return d
	}

	host := extractHost(url)
	for _, pattern := range allowPatterns {
		switch {
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(host, pattern[1:]) {
				return allow()
			}
		case strings.Contains(pattern, "://"):
			if strings.HasPrefix(url, pattern) {
				return allow()
			}
		case pattern == host:
			return allow()
		case strings.HasPrefix(pattern, "."):
			if strings.HasSuffix(host, pattern) {
				return allow()
			}
		}
	}

	return deny("url is outside the allowed fetch patterns", map[string]any{
		"url":             url,
		"allowedPatterns": allowPatterns,
	})
}

func extractHost(rawURL string) string {
	s := rawURL
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 && isAllDigits(s[idx+1:]) {
		s = s[:idx]
	}
	return s
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CheckEnv evaluates an env key against the allow list plus the fixed
// always-allowed set (spec §4.1). Facades are expected never to treat a
// deny Decision here as an error — env reads fail silently (spec §4.2).
func CheckEnv(key string, allowPatterns []string) Decision {
	if alwaysAllowedEnv[key] {
		return allow()
	}
	for _, pattern := range allowPatterns {
		if pattern == key {
			return allow()
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, strings.TrimSuffix(pattern, "*")) {
			return allow()
		}
	}
	return deny("env key is not in the allowed set", map[string]any{"key": key})
}

// shellDenySubstrings are catastrophic command forms that are always
// blocked, regardless of any allow-list (spec §4.1). Matching is
// best-effort substring matching on the joined command line (spec §9,
// "Open question — partial shell whitelist").
var shellDenySubstrings = []string{
	"rm -rf /",
	"rm -fr /",
	"mkfs",
	"dd if=",
	"dd of=/dev",
	":(){ :|:& };:",
	"chmod -R 777 /",
	"chmod 777 /",
	"chown -R root",
	"> /dev/sd",
	"> /dev/hd",
	"> /dev/nvme",
}

// CheckShell evaluates a shell invocation. Shell execution is deny-by-default:
// permissions.shell.allowed must be true at all (spec §3: "empty list +
// allowed=true = any non-blocked"), and the dangerous-command deny list
// always wins even when shell is allowed; if permissions.shell.commands is
// non-empty the command name must additionally appear in it.
func CheckShell(command string, argv []string, shellPolicy manifest.ShellPolicy) Decision {
	if !shellPolicy.Allowed {
		return deny("shell execution is not allowed", map[string]any{"command": command})
	}

	joined := strings.Join(append([]string{command}, argv...), " ")
	lower := strings.ToLower(joined)
	for _, bad := range shellDenySubstrings {
		if strings.Contains(lower, strings.ToLower(bad)) {
			return deny("command matches the fixed dangerous-command deny list", map[string]any{"command": joined})
		}
	}

	if len(shellPolicy.Commands) > 0 {
		for _, c := range shellPolicy.Commands {
			if c == command {
				return allow()
			}
		}
		return deny("command is not in the shell.commands allow-list", map[string]any{"command": command})
	}

	return allow()
}

// CheckInvoke evaluates a plugin-to-plugin invocation target.
// permissions.invoke.allowed must be true (spec §3: "empty list +
// allowed=true = any non-blocked"); otherwise every target is denied.
func CheckInvoke(pluginID string, invokePolicy manifest.InvokePolicy) Decision {
	if !invokePolicy.Allowed {
		return deny("plugin invocation is not allowed", map[string]any{"pluginId": pluginID})
	}
	if len(invokePolicy.Plugins) == 0 {
		return allow()
	}
	for _, p := range invokePolicy.Plugins {
		if p == pluginID {
			return allow()
		}
	}
	return deny("target plugin is not in the invoke.plugins allow-list", map[string]any{"pluginId": pluginID})
}
