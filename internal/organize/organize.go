// Package organize scans raw instrument output directories and
// materializes the Project/Sample/LibraryPrep/SequencingRun
// hierarchy from them, resolving the library-prep identity of each
// fastq file and optionally building the on-disk analysis tree.
package organize

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/authority"
	"github.com/strand-cloud/strand/internal/hierarchy"
	"github.com/strand-cloud/strand/internal/notify"
	"github.com/strand-cloud/strand/pkg/fsutil"
	"github.com/strand-cloud/strand/pkg/log"
)

// Options configure a materialization batch.
type Options struct {
	// CreateFiles materializes the analysis tree on disk and
	// symlinks the source fastq files into it.
	CreateFiles bool
	// OutputRoot is where the analysis tree is built.
	OutputRoot string
	// FallbackLibprep is used, with a warning, when no other
	// source can resolve a fastq file's library prep.
	FallbackLibprep string
}

// Organizer materializes flowcell directories into the hierarchy.
// The hierarchy accumulates across calls: one sample's data is
// often split over several sequencing runs delivered at different
// times, and existing nodes are reused, never rebuilt.
type Organizer struct {
	authority authority.Client
	notifier  notify.Notifier
	opts      Options

	projects map[string]*hierarchy.Project
}

// New builds an Organizer over its collaborators.
func New(a authority.Client, n notify.Notifier, opts Options) *Organizer {
	return &Organizer{
		authority: a,
		notifier:  n,
		opts:      opts,
		projects:  map[string]*hierarchy.Project{},
	}
}

// Projects returns every project materialized so far.
func (o *Organizer) Projects() []*hierarchy.Project {
	out := make([]*hierarchy.Project, 0, len(o.projects))
	for _, p := range o.projects {
		out = append(out, p)
	}
	return out
}

// MaterializeAll processes each raw directory in turn. A failure
// in one directory is logged and skipped, never fatal to the
// batch; discovering zero usable projects across the whole batch
// is a hard error.
func (o *Organizer) MaterializeAll(ctx context.Context, dirs []string) ([]*hierarchy.Project, error) {
	for _, dir := range dirs {
		if err := o.Materialize(ctx, dir); err != nil {
			log.Error(
				"flowcell directory skipped",
				"dir", dir,
				"error", err,
			)
		}
	}

	projects := o.Projects()
	if len(projects) == 0 {
		return nil, errors.New("no usable projects found in any input directory")
	}

	return projects, nil
}

// Materialize processes one raw instrument output directory. An
// unparseable run directory or missing structure aborts this
// directory only; the hierarchy keeps whatever was accumulated
// from other directories.
func (o *Organizer) Materialize(ctx context.Context, dir string) error {
	meta, err := parseRunDir(dir)
	if err != nil {
		return err
	}

	sheet, err := loadSampleSheet(dir)
	if err != nil {
		// A corrupt sheet is not fatal: resolution falls through
		// to the authority.
		log.Warn("sample sheet unreadable", "dir", dir, "error", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read run directory %v", dir)
	}

	found := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name, ok := parseProjectDir(entry.Name())
		if !ok {
			continue
		}
		found = true

		if err := o.materializeProject(ctx, meta, sheet, filepath.Join(dir, entry.Name()), name); err != nil {
			log.Error(
				"project skipped",
				"run", meta.Name,
				"project", name,
				"error", err,
			)
		}
	}

	if !found {
		return errors.Errorf("no project directories in %v", dir)
	}

	return nil
}

func (o *Organizer) materializeProject(ctx context.Context, meta *RunMetadata, sheet *sampleSheet, projectDir, name string) error {
	dirName := dirEncodedName(name)
	project, ok := o.projects[name]
	if !ok {
		project = hierarchy.NewProject(
			name,
			dirName,
			name,
			filepath.Join(o.opts.OutputRoot, dirName),
		)
		o.projects[name] = project
	}

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return errors.Wrapf(err, "read project directory %v", projectDir)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sampleName := sampleDirName(entry.Name())
		if err := o.materializeSample(ctx, meta, sheet, project, filepath.Join(projectDir, entry.Name()), sampleName); err != nil {
			log.Error(
				"sample skipped",
				"run", meta.Name,
				"project", project.Name,
				"sample", sampleName,
				"error", err,
			)
		}
	}

	return nil
}

func (o *Organizer) materializeSample(ctx context.Context, meta *RunMetadata, sheet *sampleSheet, project *hierarchy.Project, sampleDir, sampleName string) error {
	fastqs, err := doublestar.FilepathGlob(filepath.Join(sampleDir, "**", "*.fastq.gz"))
	if err != nil {
		return errors.Wrapf(err, "glob fastq files in %v", sampleDir)
	}
	if len(fastqs) == 0 {
		log.Warn(
			"no fastq files for sample",
			"run", meta.Name,
			"project", project.Name,
			"sample", sampleName,
		)
		return nil
	}

	sample := project.GetOrCreateSample(sampleName, sampleName)

	for _, fastq := range fastqs {
		libprep, ok := o.resolveLibprep(ctx, meta, sheet, project, sampleName, fastq)
		if !ok {
			continue
		}

		prep := sample.GetOrCreateLibraryPrep(libprep, libprep)
		seqrun := prep.GetOrCreateSequencingRun(meta.Name, meta.Name)
		seqrun.AddFastqFiles(filepath.Base(fastq))

		if o.opts.CreateFiles {
			if err := o.linkFastq(project, sample, prep, seqrun, fastq); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveLibprep walks the fallback chain for one fastq file:
// sample sheet, authority flowcell association, single known
// libprep, caller-supplied fallback. When every source comes up
// empty the file's placement is aborted and an operator is
// notified; the rest of the batch proceeds.
func (o *Organizer) resolveLibprep(ctx context.Context, meta *RunMetadata, sheet *sampleSheet, project *hierarchy.Project, sampleName, fastq string) (string, bool) {
	if libprep, ok := sheet.libprepFor(sampleName); ok {
		return libprep, true
	}

	libprep, err := o.authority.LibprepForFlowcell(ctx, project.ProjectID, sampleName, meta.FlowcellID)
	if err == nil && libprep != "" {
		return libprep, true
	}
	if err != nil && !errors.Is(err, authority.ErrNotFound) {
		log.Warn(
			"authority libprep lookup failed",
			"project", project.Name,
			"sample", sampleName,
			"flowcell", meta.FlowcellID,
			"error", err,
		)
	}

	preps, err := o.authority.ListLibpreps(ctx, project.ProjectID, sampleName)
	if err != nil {
		log.Warn(
			"authority libprep list failed",
			"project", project.Name,
			"sample", sampleName,
			"error", err,
		)
	}
	if len(preps) == 1 {
		log.Warn(
			"assuming sample's only known library prep",
			"project", project.Name,
			"sample", sampleName,
			"libprep", preps[0],
			"fastq", filepath.Base(fastq),
		)
		return preps[0], true
	}

	if o.opts.FallbackLibprep != "" {
		log.Warn(
			"using fallback library prep",
			"project", project.Name,
			"sample", sampleName,
			"libprep", o.opts.FallbackLibprep,
			"fastq", filepath.Base(fastq),
		)
		return o.opts.FallbackLibprep, true
	}

	log.Error(
		"unresolvable library prep, fastq not placed",
		"project", project.Name,
		"sample", sampleName,
		"flowcell", meta.FlowcellID,
		"fastq", filepath.Base(fastq),
	)
	o.notifier.Notify(
		ctx,
		notify.SeverityError,
		project.ProjectID+"/"+sampleName,
		"",
		"unresolvable library prep for "+filepath.Base(fastq)+" on flowcell "+meta.FlowcellID,
	)

	return "", false
}

// linkFastq builds the on-disk analysis tree and symlinks the
// source fastq into the sequencing run directory. Both operations
// tolerate already-exists races from concurrent materializer
// instances.
func (o *Organizer) linkFastq(project *hierarchy.Project, sample *hierarchy.Sample, prep *hierarchy.LibraryPrep, seqrun *hierarchy.SequencingRun, fastq string) error {
	dir := filepath.Join(
		project.BasePath,
		sample.DirName,
		prep.DirName,
		seqrun.DirName,
	)

	if err := fsutil.EnsureDirectory(dir); err != nil {
		return err
	}

	src, err := filepath.Abs(fastq)
	if err != nil {
		return errors.Wrapf(err, "resolve %v", fastq)
	}

	return fsutil.Symlink(src, filepath.Join(dir, filepath.Base(fastq)))
}
