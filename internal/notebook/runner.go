// Package notebook executes the external ML stage: run a Jupyter
// notebook and wait for it to exit. The notebook's outputs land on
// disk as artifact files; this package neither reads nor validates
// them.
package notebook

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/deeplynx/mladapter/internal/dataset"
)

// Runner executes notebooks through the jupyter CLI.
type Runner struct {
	// Kernel is the kernel name passed to nbconvert, e.g. "python3"
	// or "ir".
	Kernel string
}

// Run executes the notebook at path in place and blocks until it
// finishes. The combined output is returned in the error on failure.
func (r *Runner) Run(ctx context.Context, path string) error {
	if err := dataset.ValidateExtension(".ipynb", path); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "jupyter", "nbconvert",
		"--to", "notebook", "--execute", "--inplace",
		"--ExecutePreprocessor.kernel_name="+r.Kernel,
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("notebook %s failed: %w: %s", path, err, out)
	}
	return nil
}
