package quantparser

import (
	"os"
	"path/filepath"
	"testing"
)

const salmonGenes = "Name\tLength\tEffectiveLength\tTPM\tNumReads\n" +
	"ENSG01\t1000\t800.5\t10.5\t100\n" +
	"ENSG02\t500\t300\t0\t0\n" +
	"ENSG03\t2500\t2300\t89.5\t1234.5\n"

const salmonIsoforms = "Name\tLength\tEffectiveLength\tTPM\tNumReads\n" +
	"ENST01\t1000\t800.5\t60\t80\n" +
	"ENST02\t500\t300\t40\t20\n"

const salmonLegacy = "# salmon (smem-based) v0.4.0\n" +
	"# [ program ] => salmon\n" +
	"# [ command ] => quant\n" +
	"ENST01\t1000\t12.5\t50\n" +
	"ENST02\t2000\t7.5\t30\n"

const kallistoAbundance = "target_id\tlength\teff_length\test_counts\ttpm\n" +
	"ENST01\t1000\t850\t42\t2.5\n" +
	"ENST02\t1500\t1350\t7\t0.25\n"

const cufflinksHeader = "tracking_id\tclass_code\tnearest_ref_id\tgene_id\tgene_short_name\ttss_id\tlocus\tlength\tcoverage\tFPKM\tFPKM_conf_lo\tFPKM_conf_hi\tFPKM_status\n"

// G1 appears twice (1 + 2) and G2 once (5), so the total FPKM is 8.
const cufflinksGenes = cufflinksHeader +
	"G2\t-\t-\tG2\tB\t-\tchr1:100-200\t-\t-\t5\t0\t10\tOK\n" +
	"G1\t-\t-\tG1\tA\t-\tchr2:100-200\t-\t-\t1\t0\t2\tOK\n" +
	"G1\t-\t-\tG1\tA\t-\tchr2:300-400\t-\t-\t2\t0\t4\tOK\n"

const salmonMetaInfo = `{
    "salmon_version": "0.7.2",
    "samp_type": "none",
    "num_libraries": 1,
    "library_types": ["IU"],
    "frag_dist_length": 1001,
    "num_processed": 1000000,
    "num_mapped": 850000,
    "percent_mapped": 85.0,
    "call": "quant"
}`

// Global mode at 5; with a (2, 2) trim the window is indices 2..4, whose
// maximum sits at index 3.
const flenDist = "0\t1\t2\t8\t4\t10\t3\n"

const salmonLegacyLog = "[2015-07-01 10:00:00.000] [jointLog] [info] parsing read library format\n" +
	"[2015-07-01 10:00:01.000] [jointLog] [info] Observed 1000 total fragments (1000 in most recent round)\n" +
	"[2015-07-01 10:00:02.000] [jointLog] [info] Observed 2500000 total fragments (1500000 in most recent round)\n" +
	"[2015-07-01 10:00:03.000] [jointLog] [info] Overall mapping rate = 73.25%\n"

const tophatSummary = "Left reads:\n" +
	"          Input     :  10000000\n" +
	"           Mapped   :   9000000 (90.0% of input)\n" +
	"            of these:    500000 ( 5.6%) have multiple alignments (1000 have >20)\n" +
	"Right reads:\n" +
	"          Input     :  10000000\n" +
	"           Mapped   :   8800000 (88.0% of input)\n" +
	"89.0% overall read mapping rate.\n"

// writeSample lays out files (relative path => contents) under a new sample
// directory and returns it.
func writeSample(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}
