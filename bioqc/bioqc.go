// Package bioqc summarizes the biological quality of one sample's gene-level
// TPM: how well ERCC spike-ins were recovered, how much of the library went
// to spike-ins, mitochondrial genes and ribosomal RNA, and how many genes
// were detected.
package bioqc

import (
	"fmt"
	"math"

	"github.com/carbocation/readquant/quantparser"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	DetectionLimit = "detection_limit"
	Accuracy       = "accuracy"
	ERCCContent    = "ERCC_content"
	NumGenes       = "num_genes"
	MTContent      = "MT_content"
	RRNAContent    = "rRNA_content"
)

const (
	// DetectionThreshold is the TPM at or above which a spike-in counts as
	// detected.
	DetectionThreshold = 0.1

	// MinDetected is the fewest detected spike-ins the limit and the
	// accuracy are computed from.
	MinDetected = 8

	// ExpressedTPM is the TPM above which a gene counts toward num_genes.
	ExpressedTPM = 1.0

	// Inverse regularization strength of the detection-limit regression.
	regularizationC = 1.0
)

// Compute returns the biological QC record of s. s should hold gene-level
// TPM. Spike-ins absent from s are treated as undetected with TPM 0.
func Compute(s *quantparser.Series, ref Reference) (*quantparser.QCRecord, error) {
	logConc := make([]float64, len(ref.Spikes))
	spikeTPM := make([]float64, len(ref.Spikes))
	spikeIDs := make(map[string]struct{}, len(ref.Spikes))
	for i, spike := range ref.Spikes {
		logConc[i] = math.Log(spike.Concentration)
		spikeTPM[i], _ = s.Get(spike.ID)
		spikeIDs[spike.ID] = struct{}{}
	}

	limit, err := FitDetectionLimit(logConc, spikeTPM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}

	rec := quantparser.NewQCRecord(s.Name)
	rec.Set(DetectionLimit, limit)
	rec.Set(Accuracy, SpikeAccuracy(logConc, spikeTPM))

	// Spike-ins are removed and the remainder rescaled to one million before
	// the gene-level metrics.
	var erccContent float64
	var spikesPresent bool
	genes := make([]float64, 0, s.Len())
	geneIndex := make(map[string]int, s.Len())
	for i, id := range s.IDs {
		if _, isSpike := spikeIDs[id]; isSpike {
			erccContent += s.Values[i]
			spikesPresent = true
			continue
		}
		geneIndex[id] = len(genes)
		genes = append(genes, s.Values[i])
	}
	rec.Set(ERCCContent, erccContent)

	if total := floats.Sum(genes); spikesPresent && total > 0 {
		for i, v := range genes {
			genes[i] = v / total * 1e6
		}
	}

	var numGenes int
	for _, v := range genes {
		if v > ExpressedTPM {
			numGenes++
		}
	}
	rec.Set(NumGenes, float64(numGenes))
	rec.Set(MTContent, sumOf(genes, geneIndex, ref.MT))
	rec.Set(RRNAContent, sumOf(genes, geneIndex, ref.RRNA))

	return rec, nil
}

// sumOf adds up the values of the listed ids that are present.
func sumOf(values []float64, index map[string]int, ids []string) float64 {
	var total float64
	for _, id := range ids {
		if i, exists := index[id]; exists {
			total += values[i]
		}
	}
	return total
}

// FitDetectionLimit fits an L2-regularized logistic regression of
// "tpm >= DetectionThreshold" on logConc, with the intercept penalized like
// the slope, and returns the concentration at which detection is a coin
// flip, exp(-intercept / slope). With fewer than MinDetected detected
// spike-ins the limit is +Inf.
func FitDetectionLimit(logConc, tpm []float64) (float64, error) {
	if len(logConc) != len(tpm) {
		return 0, fmt.Errorf("%d concentrations but %d TPM values", len(logConc), len(tpm))
	}

	labels := make([]float64, len(tpm))
	var detected int
	for i, v := range tpm {
		labels[i] = -1
		if v >= DetectionThreshold {
			labels[i] = 1
			detected++
		}
	}
	if detected < MinDetected {
		return math.Inf(1), nil
	}

	// x[0] is the slope and x[1] the intercept.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			loss := 0.5 * (x[0]*x[0] + x[1]*x[1])
			for i, c := range logConc {
				loss += regularizationC * logistic(labels[i]*(x[0]*c+x[1]))
			}
			return loss
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = x[0], x[1]
			for i, c := range logConc {
				// d/dm log(1+exp(-m)) = -sigmoid(-m)
				g := -regularizationC * labels[i] * sigmoid(-labels[i]*(x[0]*c+x[1]))
				grad[0] += g * c
				grad[1] += g
			}
		},
	}

	result, err := optimize.Minimize(problem, []float64{0, 0}, &optimize.Settings{GradientThreshold: 1e-6}, &optimize.BFGS{})
	if err != nil {
		return 0, fmt.Errorf("fitting detection limit: %w", err)
	}

	slope, intercept := result.X[0], result.X[1]
	return math.Exp(-intercept / slope), nil
}

// logistic is log(1 + exp(-m)) without overflow.
func logistic(m float64) float64 {
	if m > 0 {
		return math.Log1p(math.Exp(-m))
	}
	return -m + math.Log1p(math.Exp(m))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// SpikeAccuracy is the Pearson correlation between log TPM and logConc over
// spike-ins with a finite log TPM. With fewer than MinDetected spike-ins at
// or above DetectionThreshold it is -Inf.
func SpikeAccuracy(logConc, tpm []float64) float64 {
	x := make([]float64, 0, len(tpm))
	y := make([]float64, 0, len(tpm))
	var detected int
	for i, v := range tpm {
		logTPM := math.Log(v)
		if math.IsInf(logTPM, 0) || math.IsNaN(logTPM) {
			continue
		}
		if logTPM >= math.Log(DetectionThreshold) {
			detected++
		}
		x = append(x, logConc[i])
		y = append(y, logTPM)
	}
	if detected < MinDetected {
		return math.Inf(-1)
	}

	return stat.Correlation(x, y, nil)
}
