package domain

import "sort"

// ResolvedTemplate is a task template merged with the caller's override for
// it, if any. The source index is the template's position in the module
// definition and is used both as the chain-order tie breaker and to keep
// ungrouped templates in their caller-visible order.
type ResolvedTemplate struct {
	Template TaskTemplate
	Override *TaskOverride

	sourceIndex int
}

// Mode returns the effective destination mode, override first.
func (r *ResolvedTemplate) Mode() DestinationMode {
	if r.Override != nil && r.Override.DestinationMode != nil {
		return *r.Override.DestinationMode
	}
	return r.Template.DestinationMode
}

// Title returns the effective task title, override first.
func (r *ResolvedTemplate) Title() string {
	if r.Override != nil && r.Override.Title != "" {
		return r.Override.Title
	}
	return r.Template.Title
}

// ChainKey identifies the dependency chain this template belongs to.
// Standalone templates get a key of their own so the dependency walk treats
// every template uniformly.
func (r *ResolvedTemplate) ChainKey() string {
	if r.Template.ChainGroupID != "" {
		return "chain:" + r.Template.ChainGroupID
	}
	return "single:" + r.Template.ID
}

// ResolveChainOrder merges templates with overrides and flattens them into
// the order tasks must be created in. Members of a chain group are sorted by
// chain order (missing orders last, ties by source index) and emitted as one
// contiguous run at the group's first appearance; later appearances of the
// same group are skipped. Ungrouped templates keep their source position.
// A chain group's templates may be scattered through the source list, which
// is why emission has to dedupe on group id rather than emit in place.
func ResolveChainOrder(templates []TaskTemplate, overrides []TaskOverride) []ResolvedTemplate {
	byTemplate := make(map[string]*TaskOverride, len(overrides))
	for i := range overrides {
		byTemplate[overrides[i].TaskTemplateID] = &overrides[i]
	}

	merged := make([]ResolvedTemplate, len(templates))
	groups := make(map[string][]*ResolvedTemplate)
	for i := range templates {
		merged[i] = ResolvedTemplate{
			Template:    templates[i],
			Override:    byTemplate[templates[i].ID],
			sourceIndex: i,
		}
		if gid := templates[i].ChainGroupID; gid != "" {
			groups[gid] = append(groups[gid], &merged[i])
		}
	}

	for _, members := range groups {
		sort.SliceStable(members, func(i, j int) bool {
			a, b := members[i].Template.ChainOrder, members[j].Template.ChainOrder
			switch {
			case a != nil && b != nil && *a != *b:
				return *a < *b
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			}
			return members[i].sourceIndex < members[j].sourceIndex
		})
	}

	out := make([]ResolvedTemplate, 0, len(merged))
	emitted := make(map[string]bool, len(groups))
	for i := range merged {
		gid := merged[i].Template.ChainGroupID
		if gid == "" {
			out = append(out, merged[i])
			continue
		}
		if emitted[gid] {
			continue
		}
		emitted[gid] = true
		for _, m := range groups[gid] {
			out = append(out, *m)
		}
	}
	return out
}
