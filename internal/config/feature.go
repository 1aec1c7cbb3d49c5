package config

import "hash/fnv"

// ShouldUseComparativeReports implements the rollout gate named in §9:
// deterministic in projectID via a stable hash, so the same project
// always lands on the same side of the rollout percentage. No
// feature-flag client appears anywhere in the retrieved corpus for
// this single-gate use case, so this uses the standard library's
// hash/fnv rather than a third-party flagging SDK.
func (f FeatureConfig) ShouldUseComparativeReports(projectID string) bool {
	if f.ComparativeReportsRollout >= 100 {
		return true
	}
	if f.ComparativeReportsRollout <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(projectID))
	bucket := int(h.Sum32() % 100)
	return bucket < f.ComparativeReportsRollout
}
