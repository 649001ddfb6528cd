package faceindex

// DefaultItemsPerTrajectory is how many images of a trajectory a cluster shows.
const DefaultItemsPerTrajectory = 2

// BuildInput holds the decoded extraction output of one movie.
type BuildInput struct {
	MovieID      int
	Trajectories []Trajectory // ImageBBs already filtered
	Assignment   []int        // trajectory index -> cluster id
	Predictions  Predictions

	// ItemsPerTrajectory caps displayed images per trajectory (DefaultItemsPerTrajectory if zero).
	ItemsPerTrajectory int
}

// Build groups trajectories into clusters, samples the displayed images and
// builds the reverse map from displayed detections to trajectory ids.
func Build(in BuildInput) (*MovieIndex, error) {
	k := in.ItemsPerTrajectory
	if k == 0 {
		k = DefaultItemsPerTrajectory
	}
	if k < 0 {
		return nil, integrityErrorf(in.MovieID, "items per trajectory must be positive, got %d", k)
	}

	if len(in.Trajectories) != len(in.Assignment) {
		return nil, integrityErrorf(in.MovieID, "%d trajectories but %d cluster assignments",
			len(in.Trajectories), len(in.Assignment))
	}

	clusters := make(map[int]*Cluster)
	trajectoryMap := make(map[Detection]int)

	for ti, ci := range in.Assignment {
		if ci < 0 {
			return nil, integrityErrorf(in.MovieID, "trajectory %d assigned to negative cluster %d", ti, ci)
		}
		t := in.Trajectories[ti]
		if len(t.ImageBBs) == 0 {
			return nil, integrityErrorf(in.MovieID, "trajectory %d has no stored images", ti)
		}

		c, ok := clusters[ci]
		if !ok {
			c = &Cluster{ID: ci}
			clusters[ci] = c
		}

		for _, d := range SplitEvenly(t.ImageBBs, k) {
			c.Samples = append(c.Samples, Sample{TrajectoryID: ti, Detection: d})
			trajectoryMap[d] = ti
		}
		c.NShownImages = len(c.Samples)
		c.NTotalImages += len(t.ImageBBs)
		c.NTrajectories++
	}

	if len(in.Predictions) != len(clusters) {
		return nil, integrityErrorf(in.MovieID, "%d predictions for %d clusters", len(in.Predictions), len(clusters))
	}
	for id := range clusters {
		if _, ok := in.Predictions[id]; !ok {
			return nil, integrityErrorf(in.MovieID, "no prediction for cluster %d", id)
		}
	}

	return &MovieIndex{
		ID:            in.MovieID,
		Clusters:      clusters,
		TrajectoryMap: trajectoryMap,
		Predictions:   in.Predictions,
	}, nil
}
