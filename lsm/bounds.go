package lsm

import "bytes"

// BoundKind distinguishes inclusive/exclusive/unbounded range endpoints.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one endpoint of a scan range.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// UnboundedBound builds an endpoint that imposes no constraint.
func UnboundedBound() Bound { return Bound{Kind: Unbounded} }

// IncludedBound builds a lower/upper endpoint that admits key itself.
func IncludedBound(key []byte) Bound { return Bound{Kind: Included, Key: key} }

// ExcludedBound builds a lower/upper endpoint that excludes key itself.
func ExcludedBound(key []byte) Bound { return Bound{Kind: Excluded, Key: key} }

func lowerAllows(lower Bound, key []byte) bool {
	switch lower.Kind {
	case Unbounded:
		return true
	case Included:
		return bytes.Compare(key, lower.Key) >= 0
	case Excluded:
		return bytes.Compare(key, lower.Key) > 0
	default:
		return true
	}
}

func upperAllows(upper Bound, key []byte) bool {
	switch upper.Kind {
	case Unbounded:
		return true
	case Included:
		return bytes.Compare(key, upper.Key) <= 0
	case Excluded:
		return bytes.Compare(key, upper.Key) < 0
	default:
		return true
	}
}
