package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
)

func MergeIngestBranchActivity(ctx context.Context, branchName string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Merging ingest branch", "branch", branchName)

	if globalStorage == nil {
		return fmt.Errorf("storage not initialized")
	}

	if err := globalStorage.MergeBranch(ctx, branchName); err != nil {
		return fmt.Errorf("failed to merge branch %s: %w", branchName, err)
	}

	logger.Info("Ingest branch merged", "branch", branchName)
	return nil
}
