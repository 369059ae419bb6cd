package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreateSampleIsIdempotent(t *testing.T) {
	p := NewProject("J.Doe_14_01", "J__Doe_14_01", "J.Doe_14_01", "/data/analysis/J__Doe_14_01")

	a := p.GetOrCreateSample("S1", "S1")
	b := p.GetOrCreateSample("S1", "S1")

	require.Same(t, a, b)
	require.Len(t, p.Samples(), 1)
}

func TestGetOrCreateReusesNodesAcrossLevels(t *testing.T) {
	p := NewProject("AB-1234", "AB-1234", "AB-1234", "/data/analysis/AB-1234")

	s := p.GetOrCreateSample("S1", "S1")
	lp := s.GetOrCreateLibraryPrep("A", "A")
	sr := lp.GetOrCreateSequencingRun("140117_ST-E00201_0027_AH00C3ALXX", "140117_ST-E00201_0027_AH00C3ALXX")

	require.Same(t, lp, s.GetOrCreateLibraryPrep("A", "other-dir"))
	require.Same(t, sr, lp.GetOrCreateSequencingRun("140117_ST-E00201_0027_AH00C3ALXX", ""))
	require.Len(t, s.LibraryPreps(), 1)
	require.Len(t, lp.SequencingRuns(), 1)
}

func TestAddFastqFilesDeduplicates(t *testing.T) {
	p := NewProject("AB-1234", "AB-1234", "AB-1234", "")
	sr := p.GetOrCreateSample("S1", "S1").
		GetOrCreateLibraryPrep("A", "A").
		GetOrCreateSequencingRun("run", "run")

	sr.AddFastqFiles("S1_L001_R1.fastq.gz", "S1_L001_R2.fastq.gz")
	sr.AddFastqFiles("S1_L001_R1.fastq.gz")
	sr.AddFastqFiles("S1_L001_R2.fastq.gz", "S1_L002_R1.fastq.gz")

	require.Equal(t, []string{
		"S1_L001_R1.fastq.gz",
		"S1_L001_R2.fastq.gz",
		"S1_L002_R1.fastq.gz",
	}, sr.FastqFiles())
}

func TestFastqFilesReturnsCopy(t *testing.T) {
	p := NewProject("AB-1234", "AB-1234", "AB-1234", "")
	sr := p.GetOrCreateSample("S1", "S1").
		GetOrCreateLibraryPrep("A", "A").
		GetOrCreateSequencingRun("run", "run")

	sr.AddFastqFiles("a.fastq.gz")

	files := sr.FastqFiles()
	files[0] = "mutated"

	require.Equal(t, []string{"a.fastq.gz"}, sr.FastqFiles())
}
