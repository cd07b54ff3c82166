// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"strings"
	"time"
)

// Filters narrows entry listings. All set filters apply conjunctively.
type Filters struct {
	RepoRoot  *string
	Name      *string
	TodayOnly bool
	SessionID *string
}

// predicate is one (column, operator, value) filter term. Values are
// always bound as parameters; column and operator come from the fixed
// tables below, never from input.
type predicate struct {
	column string
	op     string
	value  any
}

// predicates expands the filters into an ordered predicate list. now
// anchors the TodayOnly cutoff so callers (and tests) control the clock.
func (f Filters) predicates(now time.Time) []predicate {
	var preds []predicate
	if f.RepoRoot != nil {
		preds = append(preds, predicate{"repo_root", "=", *f.RepoRoot})
	}
	if f.Name != nil {
		preds = append(preds, predicate{"name", "=", *f.Name})
	}
	if f.SessionID != nil {
		preds = append(preds, predicate{"session_id", "=", *f.SessionID})
	}
	if f.TodayOnly {
		y, m, d := now.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UTC()
		preds = append(preds, predicate{"timestamp", ">=", midnight})
	}
	return preds
}

// compileWhere renders predicates into a WHERE fragment (including the
// leading " WHERE " when non-empty) and the matching parameter slice.
func compileWhere(preds []predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	terms := make([]string, len(preds))
	args := make([]any, len(preds))
	for i, p := range preds {
		terms[i] = p.column + " " + p.op + " ?"
		args[i] = p.value
	}
	return " WHERE " + strings.Join(terms, " AND "), args
}
