package model

import "sort"

// Priority is the ordinal lead priority label assigned by the classifiers.
// Semantically ordered Urgent > High > Medium > Low.
type Priority string

const (
	PriorityUrgent Priority = "Urgent"
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// priorityRank maps labels to their ordinal rank for sorting. A plain
// lexicographic sort of the label text would place High last, below both
// Medium and Low, so ordering always goes through this table.
var priorityRank = map[Priority]int{
	PriorityUrgent: 3,
	PriorityHigh:   2,
	PriorityMedium: 1,
	PriorityLow:    0,
}

// ValidPriority reports whether p is a member of the closed label set.
func ValidPriority(p Priority) bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank returns the ordinal rank of p (Urgent=3 .. Low=0), or -1 for
// unknown labels.
func (p Priority) Rank() int {
	r, ok := priorityRank[p]
	if !ok {
		return -1
	}
	return r
}

// SortLeadsByAuditPriority orders leads by auditor priority rank,
// most urgent first. Leads without an audit label sort last. The sort is
// stable so leads with equal rank keep their stored order.
func SortLeadsByAuditPriority(leads []Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return auditRank(leads[i]) > auditRank(leads[j])
	})
}

func auditRank(l Lead) int {
	if l.AuditPriority == nil {
		return -1
	}
	return l.AuditPriority.Rank()
}
