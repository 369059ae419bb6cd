package organize

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/strand-cloud/strand/internal/bootstrap"
	"github.com/strand-cloud/strand/internal/organize"
	"github.com/strand-cloud/strand/pkg/log"
)

const (
	usage   = "organize <flowcell-dir>..."
	short   = "Organize raw flowcell directories into the analysis tree"
	long    = "This command scans raw instrument output directories, resolves the Project/Sample/LibraryPrep/SequencingRun structure, and links the fastq files into the analysis tree"
	example = "strand organize /data/incoming/140117_ST-E00201_0027_AH00C3ALXX"
)

var (
	// Cmd is the organize command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"o"},
		Example: example,
		Args:    cobra.MinimumNArgs(1),
		RunE:    run,
	}

	createFiles     bool
	outputRoot      string
	fallbackLibprep string
)

func init() {
	Cmd.Flags().BoolVar(&createFiles, "create-files", true, "materialize directories and symlink fastq files")
	Cmd.Flags().StringVar(&outputRoot, "output-root", "/data/analysis", "root of the analysis tree")
	Cmd.Flags().StringVar(&fallbackLibprep, "fallback-libprep", "", "library prep to assume when no source can resolve one")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	auth, err := bootstrap.Authority()
	if err != nil {
		return err
	}

	organizer := organize.New(auth, bootstrap.Notifier(), organize.Options{
		CreateFiles:     createFiles,
		OutputRoot:      outputRoot,
		FallbackLibprep: fallbackLibprep,
	})

	projects, err := organizer.MaterializeAll(ctx, args)
	if err != nil {
		return err
	}

	for _, p := range projects {
		log.Info(
			"project organized",
			"project", p.Name,
			"samples", len(p.Samples()),
			"path", p.BasePath,
		)
	}

	return nil
}
