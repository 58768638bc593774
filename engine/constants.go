package engine

// Tolerances are package variables rather than constants so deployments at
// other latitudes or in other coordinate systems can retune them before a
// session starts.
var (
	// SharedEdgeTolDegSq is the squared perpendicular distance (degrees)
	// under which a vertex counts as lying on another ring's boundary.
	// Roughly (22m)^2 at mid latitudes.
	SharedEdgeTolDegSq = 4e-8

	// MinSharedVertices is the minimum number of neighbour vertices a
	// shared segment must contain to survive detection.
	MinSharedVertices = 3

	// BBoxPadDeg pads bounding boxes before the overlap fast-reject,
	// about 110m.
	BBoxPadDeg = 0.001

	// MinGapAreaSqm is the smallest gap worth reporting.
	MinGapAreaSqm = 100.0

	// MinOverlapAreaSqm separates a real overlap from boundary noise.
	MinOverlapAreaSqm = 100.0

	// DuplicateOverlapRatio: a patch covering this share of the smaller
	// geometry's area is a duplicate.
	DuplicateOverlapRatio = 0.95

	// MaxDisplacementDegSq caps a single displacement vector. Anything
	// above ~35km is a mismatch, not an edit.
	MaxDisplacementDegSq = 0.1

	// MinDisplacementDegSq is the no-op floor, around a centimetre.
	MinDisplacementDegSq = 1e-14

	// ChangeDetectTolDegSq decides whether a vertex moved between the
	// pre-edit simplified ring and the refined ring.
	ChangeDetectTolDegSq = 1e-14

	// NarrowAnchorPad widens the detected changed range by this many
	// vertices on each side.
	NarrowAnchorPad = 3

	// WindingSampleMax bounds the number of projected edge indices
	// sampled when deciding whether two rings run in opposite directions.
	WindingSampleMax = 20

	// DeviationSampleMax bounds the vertices sampled when measuring the
	// max deviation of a simplified geometry.
	DeviationSampleMax = 500

	// PoorAngleDeg and PoorDistanceM are the connection-quality limits:
	// a splice endpoint joining at a sharper angle, or further from its
	// unedited neighbour, is flagged poor.
	PoorAngleDeg  = 30.0
	PoorDistanceM = 5.0

	// Tolerance search bounds for FindToleranceForTarget.
	TargetTolLo    = 1e-7
	TargetTolHi    = 1e-2
	TargetTolIters = 20
	TargetTolSlack = 0.10
)

// MetersPerDegree is the planar degree/metre conversion used throughout.
// 1 degree of latitude is close to 111km everywhere; longitude is scaled
// by cos(lat) where it matters.
const MetersPerDegree = 111000.0
