package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.Load(v.GetString("file"))
			if err != nil {
				return err
			}
			if _, err := config.Build(spec, config.BuildOptions{}); err != nil {
				return err
			}

			out := cli.NewOutputTo(v.GetBool("json"), cmd.OutOrStdout(), cmd.ErrOrStderr())
			rows := make([][]string, len(spec.Stages))
			for i, st := range spec.Stages {
				rows[i] = []string{strconv.Itoa(i), st.Name, strconv.Itoa(len(st.Steps)), credentialIDs(st.Credentials)}
			}
			out.Print([]string{"#", "STAGE", "STEPS", "CREDENTIALS"}, rows, spec)
			out.Success("Pipeline " + spec.Name + " is valid")
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", v.GetString("file"), "Pipeline definition file")

	return cmd
}

func credentialIDs(creds []domain.CredentialSpec) string {
	ids := make([]string, len(creds))
	for i, c := range creds {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}
