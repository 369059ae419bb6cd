// Package hierarchy holds the in-memory analysis tree built by the
// organizer: Project -> Sample -> LibraryPrep -> SequencingRun. The
// tree lives for one invocation and is re-derived on every
// materialization pass; persistence is the filesystem layout and the
// remote status authority.
package hierarchy

import "github.com/strand-cloud/strand/internal/models"

// Project is the root of one customer project's analysis tree.
type Project struct {
	Name string
	// ProjectID is the fleet-wide stable identifier, distinct
	// from the human-readable name.
	ProjectID string
	// DirName is the on-disk directory name, which may differ
	// from Name (sanitized separators).
	DirName  string
	BasePath string

	samples map[string]*Sample
}

// Sample groups the library preps sequenced for one sample.
type Sample struct {
	Name    string
	DirName string

	// BeingAnalyzed is set during a single orchestration pass to
	// mark samples a launch was attempted for.
	BeingAnalyzed bool

	// Status mirrors the authority's sample-level status when a
	// code path has fetched it; empty otherwise.
	Status models.Status

	libpreps map[string]*LibraryPrep
}

// LibraryPrep groups the sequencing runs of one library preparation.
type LibraryPrep struct {
	Name    string
	DirName string

	seqruns map[string]*SequencingRun
}

// SequencingRun is the leaf level: one flowcell's worth of fastq
// files for a library prep.
type SequencingRun struct {
	Name    string
	DirName string

	fastqs []string
	seen   map[string]bool
}

// NewProject creates an empty project node.
func NewProject(name, dirName, projectID, basePath string) *Project {
	return &Project{
		Name:      name,
		ProjectID: projectID,
		DirName:   dirName,
		BasePath:  basePath,
		samples:   map[string]*Sample{},
	}
}

// GetOrCreateSample returns the sample with the given name,
// creating and linking it if absent. Idempotent: a second call
// with the same name returns the same node.
func (p *Project) GetOrCreateSample(name, dirName string) *Sample {
	if s, ok := p.samples[name]; ok {
		return s
	}

	s := &Sample{Name: name, DirName: dirName, libpreps: map[string]*LibraryPrep{}}
	p.samples[name] = s

	return s
}

// Samples returns the project's samples. Iteration order is not
// guaranteed.
func (p *Project) Samples() []*Sample {
	out := make([]*Sample, 0, len(p.samples))
	for _, s := range p.samples {
		out = append(out, s)
	}
	return out
}

// GetOrCreateLibraryPrep returns the library prep with the given
// name, creating and linking it if absent.
func (s *Sample) GetOrCreateLibraryPrep(name, dirName string) *LibraryPrep {
	if lp, ok := s.libpreps[name]; ok {
		return lp
	}

	lp := &LibraryPrep{Name: name, DirName: dirName, seqruns: map[string]*SequencingRun{}}
	s.libpreps[name] = lp

	return lp
}

// LibraryPreps returns the sample's library preps. Iteration order
// is not guaranteed.
func (s *Sample) LibraryPreps() []*LibraryPrep {
	out := make([]*LibraryPrep, 0, len(s.libpreps))
	for _, lp := range s.libpreps {
		out = append(out, lp)
	}
	return out
}

// GetOrCreateSequencingRun returns the sequencing run with the
// given name, creating and linking it if absent.
func (lp *LibraryPrep) GetOrCreateSequencingRun(name, dirName string) *SequencingRun {
	if sr, ok := lp.seqruns[name]; ok {
		return sr
	}

	sr := &SequencingRun{Name: name, DirName: dirName, seen: map[string]bool{}}
	lp.seqruns[name] = sr

	return sr
}

// SequencingRuns returns the prep's sequencing runs. Iteration
// order is not guaranteed.
func (lp *LibraryPrep) SequencingRuns() []*SequencingRun {
	out := make([]*SequencingRun, 0, len(lp.seqruns))
	for _, sr := range lp.seqruns {
		out = append(out, sr)
	}
	return out
}

// AddFastqFiles appends fastq file names to the run. Append-only
// and deduplicating, so repeated materialization passes over the
// same flowcell leave the list unchanged.
func (sr *SequencingRun) AddFastqFiles(files ...string) {
	for _, f := range files {
		if sr.seen[f] {
			continue
		}
		sr.seen[f] = true
		sr.fastqs = append(sr.fastqs, f)
	}
}

// FastqFiles returns the run's fastq file names in insertion order.
func (sr *SequencingRun) FastqFiles() []string {
	out := make([]string, len(sr.fastqs))
	copy(out, sr.fastqs)
	return out
}
