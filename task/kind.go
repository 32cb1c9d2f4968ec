// Package task describes deferred two-party computations on vertex updates and their operand payloads.
package task

type Kind uint8

const (
	AddUint Kind = iota
	AddUlong
	AddDouble
	AddPairDoubleUint
	AddMixedPairDoubleUint
	AddUintWithReplaceParent
	UintReplaceParent
	MinUintWithParent
	DivDouble
	DecUint
	DecUlong
	DecDouble
	DecPairUintUlong
	SwapCipherEntry
	GCNVectorScale // Vector times the weight of an edge, used in scatter.
	GCNVectorAddition
	GCNForwardNN
	GCNForwardNNPrediction
	GCNBackwardNNInit
	GCNBackwardNN
	numKinds
)

var kindNames = [...]string{
	"ADD_UINT", "ADD_ULONG", "ADD_DOUBLE", "ADD_PAIR_DOUBLE_UINT", "ADD_MIXED_PAIR_DOUBLE_UINT",
	"ADD_UINT_WITH_REPLACE_PARENT", "UINT_REPLACE_PARENT", "MIN_UINT_WITH_PARENT", "DIV_DOUBLE",
	"DEC_UINT", "DEC_ULONG", "DEC_DOUBLE", "DEC_PAIR_UINT_ULONG", "SWAP_CIPHER_ENTRY",
	"GCN_VECTOR_SCALE", "GCN_VECTOR_ADDITION", "GCN_FORWARD_NN", "GCN_FORWARD_NN_PREDICTION",
	"GCN_BACKWARD_NN_INIT", "GCN_BACKWARD_NN",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "UNKNOWN"
}

func AllKinds() []Kind {
	ks := make([]Kind, numKinds)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}
