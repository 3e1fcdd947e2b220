// Package commands implements scrollctl, a terminal client for the
// scrollable API.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ayush/scrollable/internal/client"
)

const (
	keyAPI       = "api"
	keyToken     = "token"
	keyTokenFile = "token-file"
)

// session carries what every subcommand needs: an API client holding the
// current token and the file the token is persisted in.
type session struct {
	v *viper.Viper
}

func (s *session) client() *client.Client {
	c := client.New(s.v.GetString(keyAPI))
	if tok := s.v.GetString(keyToken); tok != "" {
		c.SetToken(tok)
	} else if tok, err := s.readToken(); err == nil {
		c.SetToken(tok)
	}
	return c
}

func (s *session) tokenFile() string {
	if p := s.v.GetString(keyTokenFile); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scrollctl-token"
	}
	return filepath.Join(home, ".scrollctl", "token")
}

func (s *session) readToken() (string, error) {
	b, err := os.ReadFile(s.tokenFile())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *session) saveToken(tok string) error {
	path := s.tokenFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("token dir: %w", err)
	}
	return os.WriteFile(path, []byte(tok+"\n"), 0o600)
}

func (s *session) clearToken() error {
	err := os.Remove(s.tokenFile())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SCROLLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	s := &session{v: v}

	rootCmd := &cobra.Command{
		Use:           "scrollctl",
		Short:         "Terminal client for the scrollable feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(keyAPI, "http://localhost:5000/api", "API base URL (env SCROLLCTL_API)")
	flags.String(keyToken, "", "bearer token, overrides the saved one (env SCROLLCTL_TOKEN)")
	flags.String(keyTokenFile, "", "where login stores the token (default ~/.scrollctl/token)")
	for _, k := range []string{keyAPI, keyToken, keyTokenFile} {
		_ = v.BindPFlag(k, flags.Lookup(k))
	}

	rootCmd.AddCommand(
		newRegisterCommand(s),
		newLoginCommand(s),
		newLogoutCommand(s),
		newMeCommand(s),
		newFeedCommand(s),
		newShowCommand(s),
		newPostCommand(s),
		newLikeCommand(s),
		newCommentCommand(s),
		newDeleteCommand(s),
		newUploadCommand(s),
	)

	return rootCmd
}
