package domain

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/codec"
)

//go:embed policies.yaml
var policiesYAML []byte

// policyRecord's fields mirror the policy document policy_check_agent.py
// reads out of the "policies" hash in original_source: is_active and
// post_hospital_limit are load-bearing (PolicyLookup's coverage verdict),
// summary/coverage are descriptive only.
type policyRecord struct {
	Summary           string  `yaml:"summary"`
	Coverage          string  `yaml:"coverage"`
	IsActive          bool    `yaml:"is_active"`
	PostHospitalLimit float64 `yaml:"post_hospital_limit"`
}

// SeedPolicies loads the embedded policy catalog into the "policies" hash
// so PolicyLookup has real records to resolve (§6 CLI surface step 3:
// bootstrap seeds reference data before agents start). Each record is
// written as a JSON dict, the canonical wire encoding codec.ParseDict
// expects, rather than a flattened display string.
func SeedPolicies(ctx context.Context, b *broker.Broker) error {
	var records map[string]policyRecord
	if err := yaml.Unmarshal(policiesYAML, &records); err != nil {
		return fmt.Errorf("domain: parse policies.yaml: %w", err)
	}

	for policyID, record := range records {
		encoded, err := codec.Stringify(codec.NewValue(map[string]interface{}{
			"summary":             record.Summary,
			"coverage":            record.Coverage,
			"is_active":           record.IsActive,
			"post_hospital_limit": record.PostHospitalLimit,
		}))
		if err != nil {
			return fmt.Errorf("domain: encode policy %s: %w", policyID, err)
		}
		if err := b.HSet(ctx, "policies", policyID, encoded); err != nil {
			return fmt.Errorf("domain: seed policy %s: %w", policyID, err)
		}
	}
	return nil
}
