package cli

import (
	"github.com/spf13/cobra"

	"github.com/thesyncim/mpvframe"
	"github.com/thesyncim/mpvframe/gogpuhost"
)

func newPlayCommand(a *app) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "play [media]",
		Short: "Play media in a window",
		Example: `  mpvframe play movie.mkv
  mpvframe play --bounce rick.mp4
  mpvframe play --engine pattern 'pattern://movingbox?length=10'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlay(firstArg(args), title)
		},
	}
	cmd.Flags().StringVar(&title, "title", "mpvframe", "Window title")
	return cmd
}

func (a *app) runPlay(media, title string) error {
	host := gogpuhost.New(gogpuhost.Config{
		Title:  title,
		Width:  a.cfg.Width,
		Height: a.cfg.Height,
	}, a.logger)

	session, _, err := a.open(media, host)
	if err != nil {
		return err
	}
	defer session.Close()

	player := mpvframe.NewPlayer(session, a.newScene(session), mpvframe.PlayerConfig{
		ExitOnEOF: a.cfg.ExitOnEOF,
	})
	return host.Run(player)
}
