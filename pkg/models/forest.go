package models

// FeatureCount is the fixed width of an isolation-forest feature vector.
// Order matters and is part of the persisted model contract:
//
//	0: global amount z-score
//	1: per-type amount z-score
//	2: log1p(hour txn count) - log1p(ewma hourly tps)
//	3: log1p(hour amount)    - log1p(ewma hourly amount)
//	4: transaction type frequency (0..1)
//	5: sin(2π · hourOfDay/24)
//	6: cos(2π · hourOfDay/24)
//	7: day of week / 6 (Sunday = 0)
const FeatureCount = 8

// ForestModelVersion tags the persisted node-pool layout.
const ForestModelVersion = "if-v1"

// ForestTree is one isolation tree flattened into parallel node arrays.
// Node 0 is the root; Left/Right hold child indices, -1 marks a leaf.
// Size is the number of training samples that reached the node, used for
// the path-length correction at leaves.
type ForestTree struct {
	Feature []int     `json:"feature"`
	Split   []float64 `json:"split"`
	Left    []int     `json:"left"`
	Right   []int     `json:"right"`
	Size    []int     `json:"size"`
}

// IsolationForestModel is the per-client trained model persisted in the
// if_models set, keyed by clientId.
type IsolationForestModel struct {
	ClientID    string       `json:"clientId"`
	Version     string       `json:"version"`
	NumTrees    int          `json:"numTrees"`
	SampleSize  int          `json:"sampleSize"` // sub-sample per tree
	HeightLimit int          `json:"heightLimit"`
	Trees       []ForestTree `json:"trees"`
	SampleCount int          `json:"sampleCount"` // training vectors used
	TrainedAt   int64        `json:"trainedAt"`   // epoch millis
}
