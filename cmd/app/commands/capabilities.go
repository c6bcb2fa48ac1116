package commands

import (
	"context"
	"fmt"

	capabilityUseCase "github.com/allisson/capvault/internal/capability/usecase"
)

// RunCapabilities loads the manifest and prints every registered capability. An invalid
// manifest is reported as an error.
func RunCapabilities(
	ctx context.Context,
	registry capabilityUseCase.Registry,
	io IOTuple,
	format string,
) error {
	set, err := registry.Refresh(ctx)
	if err != nil {
		return err
	}
	descriptors := set.List()

	if format == "json" {
		return outputJSON(descriptors, io.Writer)
	}

	if len(descriptors) == 0 {
		_, _ = fmt.Fprintf(io.Writer, "No capabilities registered in %s.\n", set.Source())
		return nil
	}
	for _, d := range descriptors {
		credential := "-"
		if d.RequiresCredential {
			credential = d.ProviderID()
		}
		_, _ = fmt.Fprintf(io.Writer, "%s\t%s\t%s\tcredential: %s\n", d.Name, d.Kind, d.InvocationTarget, credential)
	}
	return nil
}
