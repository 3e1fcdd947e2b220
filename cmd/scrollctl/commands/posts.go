package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayush/scrollable/internal/feedview"
	"github.com/ayush/scrollable/internal/models"
)

func printPost(w io.Writer, p *models.PostView) {
	heart := " "
	if p.LikedByMe {
		heart = "*"
	}
	fmt.Fprintf(w, "[%s] @%s  %s  %s\n", p.ID, p.User.Username, p.MediaType, p.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "    %s\n", p.MediaURL)
	if p.Caption != "" {
		fmt.Fprintf(w, "    %s\n", p.Caption)
	}
	fmt.Fprintf(w, "    %s %d likes, %d comments\n", heart, len(p.Likes), len(p.Comments))
}

func printComments(w io.Writer, p *models.PostView) {
	for _, c := range p.Comments {
		fmt.Fprintf(w, "    @%s: %s\n", c.User.Username, c.Text)
	}
}

func newFeedCommand(s *session) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Scroll the feed; Enter loads the next page, q quits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			feed := feedview.New(s.client(), limit)
			in := bufio.NewScanner(cmd.InOrStdin())

			shown := 0
			for {
				if _, err := feed.SentinelVisible(ctx); err != nil {
					fmt.Fprintf(out, "load failed: %v (Enter retries)\n", err)
				}
				posts := feed.Posts()
				for i := shown; i < len(posts); i++ {
					printPost(out, &posts[i])
				}
				shown = len(posts)

				if !feed.HasMore() {
					fmt.Fprintf(out, "-- end of feed, %d posts --\n", shown)
					return nil
				}
				fmt.Fprint(out, "-- more (Enter / q) --\n")
				if !in.Scan() || strings.EqualFold(strings.TrimSpace(in.Text()), "q") {
					return in.Err()
				}
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "posts per page")
	return cmd
}

func newShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show one post with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.client().Post(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPost(cmd.OutOrStdout(), p)
			printComments(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newPostCommand(s *session) *cobra.Command {
	var req models.CreatePostRequest
	var file, mediaType string

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create a post from a file or an already uploaded URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := s.client()

			req.MediaType = models.MediaType(mediaType)
			if file != "" {
				up, err := uploadFile(cmd, s, file)
				if err != nil {
					return err
				}
				req.MediaURL, req.MediaType = up.URL, up.Type
			}

			p, err := c.CreatePost(ctx, req)
			if err != nil {
				return err
			}
			printPost(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "image or video to upload first")
	cmd.Flags().StringVar(&req.MediaURL, "media-url", "", "URL of already uploaded media")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "image or video, with --media-url")
	cmd.Flags().StringVarP(&req.Caption, "caption", "c", "", "caption")
	cmd.MarkFlagsMutuallyExclusive("file", "media-url")
	cmd.MarkFlagsOneRequired("file", "media-url")
	return cmd
}

func newLikeCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like a post, or unlike it if already liked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.client().ToggleLike(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPost(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newCommentCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text...>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.client().Comment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printPost(cmd.OutOrStdout(), p)
			printComments(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newDeleteCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <post-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your posts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.client().DeletePost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newUploadCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload an image or video and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := uploadFile(cmd, s, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url:  %s\n", up.URL)
			fmt.Fprintf(out, "type: %s\n", up.Type)
			fmt.Fprintf(out, "id:   %s\n", up.PublicID)
			return nil
		},
	}
}

func uploadFile(cmd *cobra.Command, s *session, path string) (*models.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.client().Upload(cmd.Context(), filepath.Base(path), f)
}
