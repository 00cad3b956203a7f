package runtime

import (
	"os"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// Env is the single-callable env facade (spec §4.2). It never fails on a
// denied key — silent denial is deliberate so plugins can probe for
// optional env without handling an error path.
type Env struct {
	policy manifest.Policy
}

func newEnv(p manifest.Policy) *Env {
	return &Env{policy: p}
}

// Get returns the value of key, or ("", false) if the key is unset or the
// Policy denies it.
func (e *Env) Get(key string) (string, bool) {
	if d := policy.CheckEnv(key, e.policy.Env.Read); !d.Allow {
		return "", false
	}
	return os.LookupEnv(key)
}
