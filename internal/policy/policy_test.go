// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package policy_test

import (
	"testing"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

func TestCheckReadPath_DenyOutsideCwd(t *testing.T) {
	d := policy.CheckReadPath("/etc/passwd", "/w", nil)
	if d.Allow {
		t.Fatal("expected deny for /etc/passwd")
	}
	if d.Details["path"] != "/etc/passwd" {
		t.Errorf("details[path] = %v, want /etc/passwd", d.Details["path"])
	}
}

func TestCheckReadPath_AllowsCwdRelative(t *testing.T) {
	d := policy.CheckReadPath("./a.txt", "/w", nil)
	if !d.Allow {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}
}

func TestCheckReadPath_FixedDenyWinsOverAllow(t *testing.T) {
	d := policy.CheckReadPath("/w/.git/config", "/w", []string{"/w"})
	if d.Allow {
		t.Fatal("expected deny for .git path even with matching allow entry")
	}
}

func TestCheckReadPath_SecretSubstringDenied(t *testing.T) {
	d := policy.CheckReadPath("/w/my-secrets.txt", "/w", []string{"/w"})
	if d.Allow {
		t.Fatal("expected deny for path containing 'secret'")
	}
}

func TestCheckWritePath_DefaultOutdir(t *testing.T) {
	d := policy.CheckWritePath("./report.json", "/w", nil, "")
	if d.Allow {
		t.Fatal("expected deny: cwd is not in the write allow set by default")
	}

	d2 := policy.CheckWritePath("/w/.kb/output/report.json", "/w", nil, "")
	if !d2.Allow {
		t.Fatalf("expected allow under default outdir, got deny: %s", d2.Reason)
	}
}

func TestCheckFetch_URLGlob(t *testing.T) {
	allow := []string{"https://api.example.com/*"}

	d := policy.CheckFetch("https://api.example.com/v1/x", allow)
	if !d.Allow {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}

	d2 := policy.CheckFetch("https://evil.com/", allow)
	if d2.Allow {
		t.Fatal("expected deny for non-matching host")
	}
	if got := d2.Details["allowedPatterns"]; got == nil {
		t.Error("expected allowedPatterns in details")
	}
}

func TestCheckFetch_ExactNoMetacharacters(t *testing.T) {
	d := policy.CheckFetch("https://x.com/q", []string{"https://x.com/q"})
	if !d.Allow {
		t.Fatal("expected allow for exact pattern match")
	}
	d2 := policy.CheckFetch("https://x.com/qx", []string{"https://x.com/q"})
	if d2.Allow {
		t.Fatal("expected deny: pattern must match end-to-end")
	}
}

func TestCheckFetchRelaxed_SuffixAndHost(t *testing.T) {
	d := policy.CheckFetchRelaxed("https://sub.example.com/path", []string{"*.example.com"})
	if !d.Allow {
		t.Fatal("expected allow via *.host suffix match")
	}

	d2 := policy.CheckFetchRelaxed("https://example.com/path", []string{"example.com"})
	if !d2.Allow {
		t.Fatal("expected allow via exact hostname match")
	}
}

func TestCheckEnv_AlwaysAllowed(t *testing.T) {
	for _, key := range []string{"NODE_ENV", "CI", "DEBUG", "TZ", "LANG", "LC_ALL"} {
		d := policy.CheckEnv(key, nil)
		if !d.Allow {
			t.Errorf("CheckEnv(%q, nil) denied, want always-allowed", key)
		}
	}
}

func TestCheckEnv_Prefix(t *testing.T) {
	d := policy.CheckEnv("MYAPP_TOKEN", []string{"MYAPP_*"})
	if !d.Allow {
		t.Fatal("expected allow via prefix match")
	}
	d2 := policy.CheckEnv("OTHER_TOKEN", []string{"MYAPP_*"})
	if d2.Allow {
		t.Fatal("expected deny for non-matching prefix")
	}
}

func TestCheckShell_DangerousDenied(t *testing.T) {
	d := policy.CheckShell("rm", []string{"-rf", "/"}, manifest.ShellPolicy{Allowed: true})
	if d.Allow {
		t.Fatal("expected deny for rm -rf /")
	}
}

func TestCheckShell_CommandsAllowList(t *testing.T) {
	sp := manifest.ShellPolicy{Allowed: true, Commands: []string{"git"}}
	if !policy.CheckShell("git", []string{"status"}, sp).Allow {
		t.Fatal("expected allow for whitelisted command")
	}
	if policy.CheckShell("curl", []string{"http://x"}, sp).Allow {
		t.Fatal("expected deny for non-whitelisted command")
	}
}

func TestCheckShell_NotAllowedDeniesEvenWithoutCommands(t *testing.T) {
	d := policy.CheckShell("git", []string{"status"}, manifest.ShellPolicy{})
	if d.Allow {
		t.Fatal("expected deny when shell.allowed is false, regardless of commands")
	}

	sp := manifest.ShellPolicy{Commands: []string{"git"}}
	if policy.CheckShell("git", []string{"status"}, sp).Allow {
		t.Fatal("expected deny when shell.allowed is false even if the command is listed")
	}
}

func TestCheckInvoke(t *testing.T) {
	ip := manifest.InvokePolicy{Allowed: true, Plugins: []string{"other-plugin"}}
	if !policy.CheckInvoke("other-plugin", ip).Allow {
		t.Fatal("expected allow for listed plugin")
	}
	if policy.CheckInvoke("unlisted", ip).Allow {
		t.Fatal("expected deny for unlisted plugin")
	}

	open := manifest.InvokePolicy{Allowed: true}
	if !policy.CheckInvoke("anything", open).Allow {
		t.Fatal("expected allow when invoke.plugins is empty")
	}
}

func TestCheckInvoke_NotAllowedDeniesEvenWithoutPlugins(t *testing.T) {
	d := policy.CheckInvoke("anything", manifest.InvokePolicy{})
	if d.Allow {
		t.Fatal("expected deny when invoke.allowed is false, regardless of plugins")
	}

	ip := manifest.InvokePolicy{Plugins: []string{"other-plugin"}}
	if policy.CheckInvoke("other-plugin", ip).Allow {
		t.Fatal("expected deny when invoke.allowed is false even if the plugin is listed")
	}
}
