package session

import "encoding/json"

// MethodKind tags the training method of an exercise. Every dispatch on it
// must handle all six kinds.
type MethodKind string

const (
	MethodNormal    MethodKind = "normal"
	MethodBiSet     MethodKind = "bi_set"
	MethodDropSet   MethodKind = "drop_set"
	MethodRestPause MethodKind = "rest_pause"
	MethodCluster   MethodKind = "cluster"
	MethodCardio    MethodKind = "cardio"
)

func (mk MethodKind) String() string {
	return string(mk)
}

func (mk MethodKind) IsValid() bool {
	switch mk {
	case MethodNormal, MethodBiSet, MethodDropSet, MethodRestPause, MethodCluster, MethodCardio:
		return true
	default:
		return false
	}
}

// Method is a tagged union: exactly the config matching Kind is set, all
// others are nil. Normal and BiSet carry no config.
type Method struct {
	Kind      MethodKind       `json:"kind"`
	DropSet   *DropSetConfig   `json:"dropSet,omitempty"`
	RestPause *RestPauseConfig `json:"restPause,omitempty"`
	Cluster   *ClusterConfig   `json:"cluster,omitempty"`
	Cardio    *CardioConfig    `json:"cardio,omitempty"`
}

type DropSetConfig struct {
	Drops []DropStage `json:"drops"`
}

type DropStage struct {
	Weight float64 `json:"weight"`
	Reps   int     `json:"reps"`
}

type RestPauseConfig struct {
	InitialReps int `json:"initialReps"`
	MiniSets    int `json:"miniSets"`
	RestSec     int `json:"restSec"`
}

type ClusterConfig struct {
	Weight       float64 `json:"weight"`
	TotalReps    int     `json:"totalReps"`
	ClusterSize  int     `json:"clusterSize"`
	IntraRestSec int     `json:"intraRestSec"`
}

type CardioConfig struct {
	Minutes int `json:"minutes"`
}

func NormalMethod() Method { return Method{Kind: MethodNormal} }
func BiSetMethod() Method  { return Method{Kind: MethodBiSet} }
func CardioMethod(minutes int) Method {
	return Method{Kind: MethodCardio, Cardio: &CardioConfig{Minutes: minutes}}
}

func (m Method) IsCardio() bool {
	return m.Kind == MethodCardio
}

func (m Method) clone() Method {
	out := m
	if m.DropSet != nil {
		ds := DropSetConfig{Drops: append([]DropStage(nil), m.DropSet.Drops...)}
		out.DropSet = &ds
	}
	if m.RestPause != nil {
		rp := *m.RestPause
		out.RestPause = &rp
	}
	if m.Cluster != nil {
		c := *m.Cluster
		out.Cluster = &c
	}
	if m.Cardio != nil {
		c := *m.Cardio
		out.Cardio = &c
	}
	return out
}

// AdvancedConfig is the per-set log counterpart of Method: the shape of what
// was actually performed for one set, tagged the same way.
type AdvancedConfig struct {
	Kind      MethodKind    `json:"kind"`
	DropSet   *DropSetLog   `json:"dropSet,omitempty"`
	RestPause *RestPauseLog `json:"restPause,omitempty"`
	Cluster   *ClusterLog   `json:"cluster,omitempty"`
	Cardio    *CardioLog    `json:"cardio,omitempty"`
}

type DropSetLog struct {
	Stages []DropStage `json:"stages"`
}

type RestPauseLog struct {
	ActivationReps int   `json:"activationReps"`
	MiniReps       []int `json:"miniReps"`
	RestSec        int   `json:"restSec"`
}

type ClusterLog struct {
	Weight       float64 `json:"weight"`
	Blocks       []int   `json:"blocks"`
	IntraRestSec int     `json:"intraRestSec"`
}

type CardioLog struct {
	Minutes int `json:"minutes"`
}

// TotalReps sums the reps actually performed, regardless of the method shape.
func (ac *AdvancedConfig) TotalReps() int {
	if ac == nil {
		return 0
	}
	switch ac.Kind {
	case MethodDropSet:
		if ac.DropSet == nil {
			return 0
		}
		total := 0
		for _, st := range ac.DropSet.Stages {
			total += st.Reps
		}
		return total
	case MethodRestPause:
		if ac.RestPause == nil {
			return 0
		}
		total := ac.RestPause.ActivationReps
		for _, r := range ac.RestPause.MiniReps {
			total += r
		}
		return total
	case MethodCluster:
		if ac.Cluster == nil {
			return 0
		}
		total := 0
		for _, b := range ac.Cluster.Blocks {
			total += b
		}
		return total
	case MethodNormal, MethodBiSet, MethodCardio:
		return 0
	default:
		return 0
	}
}

func (ac *AdvancedConfig) clone() *AdvancedConfig {
	if ac == nil {
		return nil
	}
	out := *ac
	if ac.DropSet != nil {
		ds := DropSetLog{Stages: append([]DropStage(nil), ac.DropSet.Stages...)}
		out.DropSet = &ds
	}
	if ac.RestPause != nil {
		rp := *ac.RestPause
		rp.MiniReps = append([]int(nil), ac.RestPause.MiniReps...)
		out.RestPause = &rp
	}
	if ac.Cluster != nil {
		c := *ac.Cluster
		c.Blocks = append([]int(nil), ac.Cluster.Blocks...)
		out.Cluster = &c
	}
	if ac.Cardio != nil {
		c := *ac.Cardio
		out.Cardio = &c
	}
	return &out
}

// UnmarshalJSON defaults an empty or unknown kind to normal, so snapshots
// written by older clients still load.
func (m *Method) UnmarshalJSON(data []byte) error {
	type alias Method
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if !MethodKind(a.Kind).IsValid() {
		a.Kind = MethodNormal
	}
	*m = Method(a)
	return nil
}
