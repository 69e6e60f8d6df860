package rest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/davidahmann/infraweave-panel/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid request")

// ValidateBranch checks that name is usable as refs/heads/<name>.
func ValidateBranch(field, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}
	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return fmt.Errorf("%w: %s %q is not a valid branch name", ErrInvalidRequest, field, name)
	}
	return nil
}

// CheckBranch reports the backend preconditions first, then validates name.
func (c *Client) CheckBranch(field, name string) error {
	if _, err := c.Base(); err != nil {
		return err
	}
	return ValidateBranch(field, name)
}

// ValidateMergeRequest checks the fields every write sequence needs.
func ValidateMergeRequest(opts types.MergeRequestOptions) error {
	required := []struct{ field, value string }{
		{"repository_path", opts.RepositoryPath},
		{"title", opts.Title},
		{"file_path", opts.FilePath},
		{"commit_message", opts.CommitMessage},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, r.field)
		}
	}
	if err := ValidateBranch("source_branch", opts.SourceBranch); err != nil {
		return err
	}
	if err := ValidateBranch("target_branch", opts.TargetBranch); err != nil {
		return err
	}
	if opts.SourceBranch == opts.TargetBranch {
		return fmt.Errorf("%w: source_branch and target_branch must differ", ErrInvalidRequest)
	}
	return nil
}
