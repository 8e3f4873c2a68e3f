package domain

import "time"

// Embedding is a fixed-length face feature vector.
type Embedding []float32

// CacheStatus tracks how far a record has progressed through the embedding cache.
type CacheStatus int

const (
	Uncached CacheStatus = iota
	Cached
	Embedded
)

func (s CacheStatus) String() string {
	switch s {
	case Uncached:
		return "uncached"
	case Cached:
		return "cached"
	case Embedded:
		return "embedded"
	default:
		return "unknown"
	}
}

type Record struct {
	ID          string // dataset-relative image path
	Identity    string
	SourcePath  string
	Fingerprint string
	Embedding   Embedding
	Status      CacheStatus
	Excluded    string // non-empty when the record was dropped from evaluation
}

// Pair references two records by index into the dataset's record slice.
type Pair struct {
	A       int
	B       int
	Genuine bool
}

type Dataset struct {
	Name    string
	Root    string
	Records []Record
	Pairs   []Pair
}

// CacheEntry is the persisted form of one extracted embedding.
type CacheEntry struct {
	Fingerprint      string    `json:"fingerprint"`
	ExtractorVersion string    `json:"extractor_version"`
	Dimension        int       `json:"dimension"`
	Vector           []float32 `json:"vector"`
	Checksum         uint32    `json:"checksum"`
	CreatedAt        time.Time `json:"created_at"`
}

// Method is the closed set of reduction strategies.
type Method string

const (
	MethodTruncate    Method = "truncate"
	MethodTruncateRel Method = "truncate-rel"
	MethodRandom      Method = "random"
	MethodBestFull    Method = "best-full"
	MethodBestGreedy  Method = "best-greedy"
	MethodQuant       Method = "quant"
	MethodProposed    Method = "proposed"
)

// QuantMode selects whether scale and zero-point are fitted per dimension or
// once across all dimensions.
type QuantMode string

const (
	QuantPerDimension QuantMode = "per-dimension"
	QuantGlobal       QuantMode = "global"
)

// QuantParams holds fitted affine parameters. ZeroPoint is the real value that
// code 0 decodes to. Global mode stores a single element in each slice.
type QuantParams struct {
	Bits      int       `json:"bits"`
	Mode      QuantMode `json:"mode"`
	Scale     []float64 `json:"scale"`
	ZeroPoint []float64 `json:"zero_point"`
}

// Step returns the quantization step for dimension i.
func (q *QuantParams) Step(i int) float64 {
	if q.Mode == QuantGlobal {
		return q.Scale[0]
	}
	return q.Scale[i]
}

type ReductionSpec struct {
	Method    Method       `json:"method"`
	Dimension int          `json:"dimension"` // D of the input embeddings
	K         int          `json:"k,omitempty"`
	Fraction  float64      `json:"fraction,omitempty"`
	Seed      uint64       `json:"seed,omitempty"`
	Bits      int          `json:"bits,omitempty"`
	Dims      []int        `json:"dims,omitempty"` // ascending, unique
	Order     []int        `json:"order,omitempty"`
	Quant     *QuantParams `json:"quant,omitempty"`
}

type CurvePoint struct {
	Threshold float64 `json:"threshold"`
	FAR       float64 `json:"far"`
	FRR       float64 `json:"frr"`
}

type EvaluationResult struct {
	Accuracy           float64      `json:"accuracy"`
	Threshold          float64      `json:"threshold"`
	FalseAccepts       int          `json:"fp"`
	FalseRejects       int          `json:"fn"`
	Genuine            int          `json:"genuine"`
	Impostor           int          `json:"impostor"`
	FAR                float64      `json:"far"`
	FRR                float64      `json:"frr"`
	FalseDiscoveryRate float64      `json:"fdr"`
	FalseOmissionRate  float64      `json:"for"`
	AUC                float64      `json:"auc"`
	Curve              []CurvePoint `json:"curve,omitempty"`
}

// Errors is the number of misclassified pairs at the chosen threshold.
func (r EvaluationResult) Errors() int {
	return r.FalseAccepts + r.FalseRejects
}

// SubsetScore is one evaluated dimension subset.
type SubsetScore struct {
	Dims   []int            `json:"dims"`
	Result EvaluationResult `json:"result"`
}

// Corpus is the immutable evaluation input derived from a record store:
// vectors indexed like the dataset's records (nil for excluded records) and
// the pairs whose both sides survived.
type Corpus struct {
	Dimension int
	Vectors   [][]float32
	Pairs     []Pair
}

// Genuine returns the number of genuine pairs.
func (c *Corpus) Genuine() int {
	n := 0
	for _, p := range c.Pairs {
		if p.Genuine {
			n++
		}
	}
	return n
}
