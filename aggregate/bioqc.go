package aggregate

import (
	"github.com/carbocation/readquant/bioqc"
	"github.com/carbocation/readquant/quantparser"
)

// ReadBioQCs returns a samples × metrics matrix of the biological QC of the
// gene-level TPM of every sample directory matching pattern. The selector's
// unit and isoform choice are overridden. Failures follow the QC policy.
func ReadBioQCs(pattern string, sel quantparser.Selector, ref bioqc.Reference, opts Options) (*Matrix, error) {
	sel.Options.Unit = quantparser.TPM
	sel.Options.Isoforms = false

	p, err := newParser(sel, quantparser.Quant, opts)
	if err != nil {
		return nil, err
	}

	m := NewMatrix(QCIndex)
	err = fold(pattern, opts, true, func(path string) error {
		s, err := p.ReadQuant(path)
		if err != nil {
			return err
		}

		rec, err := bioqc.Compute(s, ref)
		if err != nil {
			return err
		}

		m.AddRow(path, rec.Metrics, recordValues(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}
