package invocation

import (
	"slices"
	"strings"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SortOrder selects the UpdatedAt ordering of listed invocations.
type SortOrder int

const (
	// SortByUpdatedDesc returns the most recently updated invocations first.
	SortByUpdatedDesc SortOrder = iota
	SortByUpdatedAsc
)

// ListOptions is the filter shared by every Store implementation. Zero time
// bounds are open.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Tool       string
	UpdatedGTE int64
	UpdatedLTE int64
	Order      SortOrder
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(o *ListOptions) { o.Offset = offset }
}

// WithStatuses keeps only the given statuses. Unknown values are dropped when
// the options are built.
func WithStatuses(statuses ...Status) ListOption {
	return func(o *ListOptions) { o.Statuses = slices.Clone(statuses) }
}

func WithTool(name string) ListOption {
	return func(o *ListOptions) { o.Tool = name }
}

// WithUpdatedSince and WithUpdatedUntil bound UpdatedAt inclusively, at
// second precision.
func WithUpdatedSince(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedGTE = unixOrZero(ts) }
}

func WithUpdatedUntil(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedLTE = unixOrZero(ts) }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(o *ListOptions) { o.Order = order }
}

// BuildListOptions applies opts on top of the defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.applyDefaults()
	return o
}

// applyDefaults clamps the limit to [1, 100] with a default of 20, drops
// unknown statuses and turns an unknown order into descending. Stores call it
// again so hand-built options are safe.
func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	o.Limit = min(o.Limit, maxListLimit)
	o.Offset = max(o.Offset, 0)
	o.Tool = strings.TrimSpace(o.Tool)
	o.Statuses = validStatuses(o.Statuses)
	if o.Order != SortByUpdatedAsc {
		o.Order = SortByUpdatedDesc
	}
}

func (o ListOptions) matches(inv *Invocation) bool {
	switch {
	case len(o.Statuses) > 0 && !slices.Contains(o.Statuses, inv.Status):
		return false
	case o.Tool != "" && inv.Tool != o.Tool:
		return false
	case o.UpdatedGTE > 0 && inv.UpdatedAt < o.UpdatedGTE:
		return false
	case o.UpdatedLTE > 0 && inv.UpdatedAt > o.UpdatedLTE:
		return false
	}
	return true
}

func validStatuses(in []Status) []Status {
	var out []Status
	for _, s := range in {
		if IsValidStatus(s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}
