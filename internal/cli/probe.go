package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/mpvframe"
)

type probeReport struct {
	MPV      mpvReport `yaml:"libmpv"`
	Engines  []string  `yaml:"engines"`
	Selected string    `yaml:"selected,omitempty"`
	Error    string    `yaml:"error,omitempty"`
}

type mpvReport struct {
	Available bool   `yaml:"available"`
	Version   string `yaml:"client_api_version,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report which playback engines are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := probeReport{Engines: []string{mpvframe.EnginePattern}}
			if version, err := mpvframe.MPVVersion(); err != nil {
				report.MPV.Error = err.Error()
			} else {
				report.MPV.Available = true
				report.MPV.Version = version
				report.Engines = append([]string{mpvframe.EngineMPV}, report.Engines...)
			}
			if _, name, err := mpvframe.SelectEngine(a.cfg.Engine); err != nil {
				report.Error = err.Error()
			} else {
				report.Selected = name
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
