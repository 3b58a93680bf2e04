package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const accessQuery = "allow := data.trialgate.access.allow; reason := data.trialgate.access.reason"

// Default Rego policy: one trial per principal, never re-issued once consumed or expired.
const defaultRegoPolicy = `package trialgate.access

default allow := false

default reason := "trial_consumed"

expired_grant if {
	input.has_grant
	input.now_ms >= input.expires_at_ms
}

allow if {
	not input.trial_consumed
	not expired_grant
}

reason := "trial_expired" if expired_grant

reason := "" if allow
`

// OPAEvaluator evaluates the access policy using OPA Rego.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (or the built-in policy when empty) and prepares the access query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	query, err := prepare(ctx, policy)
	if err != nil {
		return nil, err
	}
	return &OPAEvaluator{query: query}, nil
}

// LoadPolicyFile reads a Rego module from path. An empty path returns the built-in policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return defaultRegoPolicy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(raw), nil
}

func prepare(ctx context.Context, policy string) (rego.PreparedEvalQuery, error) {
	compiler, err := ast.CompileModules(map[string]string{"access.rego": policy})
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(accessQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("prepare policy query: %w", err)
	}
	return q, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	q, err := prepare(ctx, defaultRegoPolicy)
	if err != nil {
		return err
	}
	_, err = evaluate(ctx, q, AccessInput{})
	return err
}

// EvaluateAccess evaluates the access policy. Evaluation failures are logged and
// answered with DefaultDecision.
func (e *OPAEvaluator) EvaluateAccess(ctx context.Context, in AccessInput) (Decision, error) {
	d, err := evaluate(ctx, e.query, in)
	if err != nil {
		log.Printf("policy: evaluation failed for principal %d: %v, using defaults", in.PrincipalID, err)
		return DefaultDecision(in), nil
	}
	return d, nil
}

func evaluate(ctx context.Context, q rego.PreparedEvalQuery, in AccessInput) (Decision, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 {
		return Decision{}, fmt.Errorf("policy query returned no result")
	}
	allow, ok := rs[0].Bindings["allow"].(bool)
	if !ok {
		return Decision{}, fmt.Errorf("policy allow is not a boolean: %v", rs[0].Bindings["allow"])
	}
	reason, _ := rs[0].Bindings["reason"].(string)
	if allow {
		reason = ""
	}
	return Decision{Allow: allow, Reason: reason}, nil
}

func buildInput(in AccessInput) map[string]interface{} {
	input := map[string]interface{}{
		"principal_id":   in.PrincipalID,
		"trial_consumed": in.TrialConsumed,
		"has_grant":      in.HasGrant,
		"now_ms":         in.Now.UnixMilli(),
		"expires_at_ms":  int64(0),
	}
	if in.HasGrant {
		input["expires_at_ms"] = in.ExpiresAt.UnixMilli()
	}
	return input
}
