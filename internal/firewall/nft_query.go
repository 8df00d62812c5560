package firewall

import (
	"context"
	"encoding/json"
	"fmt"

	"grimm.is/originguard/internal/policy"
)

// CLIReader reads nftables state by parsing nft -j output.
type CLIReader struct {
	nft    string
	runner CommandRunner
}

// NewCLIReader creates a CLI state reader.
func NewCLIReader(nftPath string, runner CommandRunner) *CLIReader {
	return &CLIReader{nft: nftPath, runner: runner}
}

type nftOutput struct {
	Nftables []struct {
		Table *struct {
			Name    string `json:"name"`
			Comment string `json:"comment"`
		} `json:"table"`
		Set *struct {
			Name string            `json:"name"`
			Elem []json.RawMessage `json:"elem"`
		} `json:"set"`
		Chain *struct {
			Name string `json:"name"`
		} `json:"chain"`
	} `json:"nftables"`
}

// ReadState lists both sets and every chain the policy may own.
func (r *CLIReader) ReadState(ctx context.Context, pol policy.Policy) (State, error) {
	var st State

	for _, f := range policy.Families {
		name := pol.SetName(f)
		out, found, err := r.list(ctx, "set", pol.Table, name)
		if err != nil {
			return State{}, err
		}
		st.mark(setKey(name), found)
		if !found {
			continue
		}
		elems, err := parseSetElements(out)
		if err != nil {
			return State{}, fmt.Errorf("parse set %s: %w", name, err)
		}
		addrs, _ := policy.ParseAddressSet(elems)
		if f == policy.FamilyV6 {
			st.V6 = addrs.Family(policy.FamilyV6)
		} else {
			st.V4 = addrs.Family(policy.FamilyV4)
		}
	}

	for _, h := range []policy.Hook{policy.HookInput, policy.HookPrerouting} {
		name := pol.ChainName(h)
		_, found, err := r.list(ctx, "chain", pol.Table, name)
		if err != nil {
			return State{}, err
		}
		st.mark(chainKey(name), found)
	}

	st.Bootstrapped = bootstrapped(st, pol)
	return st, nil
}

// list runs nft -j list <kind> inet <table> <name>. A non-zero exit means
// the object does not exist.
func (r *CLIReader) list(ctx context.Context, kind, table, name string) ([]byte, bool, error) {
	args := []string{"-j", "list", kind, nftFamily, table, name}
	out, err := r.runner.Output(ctx, r.nft, args...)
	if err != nil {
		if IsExitError(err) {
			return nil, false, nil
		}
		return nil, false, newBackendError(commandLine(r.nft, args), err)
	}
	return out, true, nil
}

// bootstrapped reports whether both sets and every configured hook chain exist.
func bootstrapped(st State, pol policy.Policy) bool {
	for _, f := range policy.Families {
		if !st.Has(setKey(pol.SetName(f))) {
			return false
		}
	}
	for _, h := range pol.Hooks {
		if !st.Has(chainKey(pol.ChainName(h))) {
			return false
		}
	}
	return true
}

// parseSetElements extracts element values from nft -j list set output.
// Elements are plain strings or objects like {"elem":{"val":"1.2.3.4"}}
// when counters or timeouts are attached. Prefixes and ranges are skipped.
func parseSetElements(data []byte) ([]string, error) {
	var out nftOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	var elems []string
	for _, item := range out.Nftables {
		if item.Set == nil {
			continue
		}
		for _, raw := range item.Set.Elem {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				elems = append(elems, s)
				continue
			}
			var wrapped struct {
				Elem struct {
					Val json.RawMessage `json:"val"`
				} `json:"elem"`
			}
			if err := json.Unmarshal(raw, &wrapped); err == nil {
				if err := json.Unmarshal(wrapped.Elem.Val, &s); err == nil {
					elems = append(elems, s)
				}
			}
		}
	}
	return elems, nil
}

func parseTableComment(data []byte) (string, error) {
	var out nftOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	for _, item := range out.Nftables {
		if item.Table != nil {
			return item.Table.Comment, nil
		}
	}
	return "", nil
}
