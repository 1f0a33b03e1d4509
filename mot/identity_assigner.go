package mot

import (
	"math"
	"sort"
)

// IDAllocator hands out fresh identities
type IDAllocator interface {
	NewID() int
}

// AssignResult is the outcome of matching one frame's observations
type AssignResult struct {
	Record FrameRecord
	// Identities allocated at this frame
	Born []int
	// Identities of the previous frame that no observation matched
	Undetected []int
	// Newborn identity -> matched identity it may have split off from (within max jump split)
	Splits map[int]int
	// Ties resolved by the deterministic tie-break
	Ambiguities int
}

// IdentityAssigner matches observations of the current frame to targets of the previous frames
type IdentityAssigner struct {
	cfg       Config
	ids       IDAllocator
	cost      CostFunc
	predictor MotionPredictor
}

// AssignerOption customizes IdentityAssigner
type AssignerOption func(*IdentityAssigner)

// WithAssignerCost sets matching cost strategy
func WithAssignerCost(cost CostFunc) AssignerOption {
	return func(assigner *IdentityAssigner) {
		if cost != nil {
			assigner.cost = cost
		}
	}
}

// WithAssignerPredictor sets motion prediction strategy
func WithAssignerPredictor(predictor MotionPredictor) AssignerOption {
	return func(assigner *IdentityAssigner) {
		if predictor != nil {
			assigner.predictor = predictor
		}
	}
}

// NewIdentityAssigner creates assigner with distance cost and constant velocity prediction
func NewIdentityAssigner(cfg Config, ids IDAllocator, opts ...AssignerOption) *IdentityAssigner {
	assigner := &IdentityAssigner{
		cfg:       cfg,
		ids:       ids,
		cost:      DistanceCost(cfg.AngleWeight),
		predictor: ConstantVelocity{Dampen: cfg.Dampen},
	}
	for _, opt := range opts {
		opt(assigner)
	}
	return assigner
}

// predictedTrack is a target of the previous frame projected to the current one
type predictedTrack struct {
	id    int
	shape Ellipse
}

// Assign builds the record of `frame`. history holds up to two previous records, oldest first.
func (assigner *IdentityAssigner) Assign(frame int, history []FrameRecord, observations []Ellipse) AssignResult {
	result := AssignResult{
		Record:     NewFrameRecord(frame),
		Born:       make([]int, 0),
		Undetected: make([]int, 0),
		Splits:     make(map[int]int),
	}
	if len(history) == 0 {
		assigner.bootstrap(&result, observations)
		return result
	}

	tracks := assigner.predict(history)
	rows := len(tracks)
	cols := len(observations)

	// Cost matrix: rows = tracks, columns = observations
	costs := make([][]float64, rows)
	for i, track := range tracks {
		costs[i] = make([]float64, cols)
		for j, obs := range observations {
			costs[i][j] = forbiddenCost
			if obs.Empty() {
				continue
			}
			if euclideanDistance(track.shape.Center, obs.Center) > assigner.cfg.MaxJump {
				continue
			}
			costs[i][j] = assigner.cost(track.shape, obs)
		}
	}
	result.Ambiguities = countTies(costs, rows, cols)

	matches := solveAssignment(costs, rows, cols, assigner.cfg.Matching)
	obsToTrack := make(map[int]int, len(matches))
	matchedTracks := make(map[int]struct{}, len(matches))
	for _, match := range matches {
		obsToTrack[match[1]] = match[0]
		matchedTracks[match[0]] = struct{}{}
	}

	for j, obs := range observations {
		if i, ok := obsToTrack[j]; ok {
			result.Record.Targets = append(result.Record.Targets, NewTarget(tracks[i].id, frame, obs))
			continue
		}
		if obs.Empty() {
			logger.WithField("frame", frame).WithField("observation", j).Warn("dropping empty observation")
			continue
		}
		id := assigner.ids.NewID()
		result.Record.Targets = append(result.Record.Targets, NewTarget(id, frame, obs))
		result.Born = append(result.Born, id)
		if parent, ok := assigner.splitParent(obs, tracks, matchedTracks); ok {
			result.Splits[id] = parent
		}
	}
	for i, track := range tracks {
		if _, ok := matchedTracks[i]; !ok {
			result.Undetected = append(result.Undetected, track.id)
		}
	}
	if result.Ambiguities > 0 {
		logger.WithField("frame", frame).WithField("ties", result.Ambiguities).Warn("ambiguous assignment resolved by tie-break")
	}
	logger.WithField("frame", frame).WithField("targets", result.Record.Len()).WithField("born", len(result.Born)).WithField("undetected", len(result.Undetected)).Debug("frame assigned")
	return result
}

// bootstrap gives every non-empty observation a new identity
func (assigner *IdentityAssigner) bootstrap(result *AssignResult, observations []Ellipse) {
	for j, obs := range observations {
		if obs.Empty() {
			logger.WithField("frame", result.Record.Frame).WithField("observation", j).Warn("dropping empty observation")
			continue
		}
		id := assigner.ids.NewID()
		result.Record.Targets = append(result.Record.Targets, NewTarget(id, result.Record.Frame, obs))
		result.Born = append(result.Born, id)
	}
}

// predict projects every target of the newest record using the two newest samples of its track.
// Tracks are ordered by identity so that tie-breaks favour older identities.
func (assigner *IdentityAssigner) predict(history []FrameRecord) []predictedTrack {
	prev1 := history[len(history)-1]
	var prev2 *FrameRecord
	if len(history) > 1 && history[len(history)-2].Frame != prev1.Frame {
		prev2 = &history[len(history)-2]
	}
	tracks := make([]predictedTrack, 0, prev1.Len())
	for _, target := range prev1.Targets {
		samples := make([]Point, 0, 2)
		if prev2 != nil {
			if older, ok := prev2.Find(target.ID); ok {
				samples = append(samples, older.Center)
			}
		}
		samples = append(samples, target.Center)
		shape := target.Ellipse.Copy()
		shape.Center = assigner.predictor.Predict(samples)
		tracks = append(tracks, predictedTrack{id: target.ID, shape: shape})
	}
	sort.Slice(tracks, func(a, b int) bool { return tracks[a].id < tracks[b].id })
	return tracks
}

// splitParent finds the closest matched track within the relaxed split gate
func (assigner *IdentityAssigner) splitParent(obs Ellipse, tracks []predictedTrack, matched map[int]struct{}) (int, bool) {
	bestDist := math.MaxFloat64
	bestID := 0
	for i, track := range tracks {
		if _, ok := matched[i]; !ok {
			continue
		}
		dist := euclideanDistance(track.shape.Center, obs.Center)
		if dist <= assigner.cfg.MaxJumpSplit && dist < bestDist {
			bestDist = dist
			bestID = track.id
		}
	}
	return bestID, bestID != 0
}

// countTies counts rows and columns whose two cheapest admissible entries have equal cost
func countTies(costs [][]float64, rows, cols int) int {
	ties := 0
	for i := 0; i < rows; i++ {
		if hasTie(func(k int) float64 { return costs[i][k] }, cols) {
			ties++
		}
	}
	for j := 0; j < cols; j++ {
		if hasTie(func(k int) float64 { return costs[k][j] }, rows) {
			ties++
		}
	}
	return ties
}

func hasTie(at func(int) float64, n int) bool {
	best, second := math.Inf(1), math.Inf(1)
	for k := 0; k < n; k++ {
		c := at(k)
		if c < best {
			best, second = c, best
		} else if c < second {
			second = c
		}
	}
	return !math.IsInf(second, 1) && costsTie(best, second)
}
