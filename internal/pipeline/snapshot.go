package pipeline

// StageSnapshot is a JSON-serializable structural summary of a stage tree,
// persisted with the run state so a paused run can be inspected and matched
// against its graph after a restart. Predicates and actions are code, not
// data, so the snapshot records structure and gate metadata only.
type StageSnapshot struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Children []StageSnapshot `json:"children,omitempty"`
	Steps    []string        `json:"steps,omitempty"`
	HasGate  bool            `json:"hasGate,omitempty"`
	Resource string          `json:"resource,omitempty"`
}

// Snapshot builds the structural summary for this stage and its subtree.
func (s *Stage) Snapshot() StageSnapshot {
	snap := StageSnapshot{
		Name:     s.Name,
		Kind:     s.Kind.String(),
		HasGate:  s.Gate != nil,
		Resource: s.Resource,
	}
	for i := range s.Steps {
		snap.Steps = append(snap.Steps, s.Steps[i].Describe())
	}
	for _, child := range s.Children {
		snap.Children = append(snap.Children, child.Snapshot())
	}
	return snap
}
