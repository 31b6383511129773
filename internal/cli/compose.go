package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/compose"
)

var (
	composeURL string
	composeMax int
)

var composeCmd = &cobra.Command{
	Use:   "compose DRAFT...",
	Short: "Preview how a draft is fitted into a post",
	Args:  cobra.MinimumNArgs(1),
	RunE:  composeAction,
}

func init() {
	composeCmd.Flags().StringVar(&composeURL, "url", "", "article URL appended to the post (required)")
	composeCmd.Flags().IntVar(&composeMax, "max", compose.DefaultMaxPostLength, "maximum post length")
	_ = composeCmd.MarkFlagRequired("url")
}

func composeAction(cmd *cobra.Command, args []string) error {
	c := compose.New(composeMax)
	draft := compose.CleanDraft(strings.Join(args, " "))

	post, err := c.Compose(draft, composeURL)
	if errors.Is(err, compose.ErrContentTooLong) {
		return fmt.Errorf("%w (body budget %d with this url)", err, c.Available(composeURL))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, post.Text())
	fmt.Fprintf(out, "\n(%d/%d chars)\n", post.Len(), c.MaxLength)
	return nil
}
