// Conveyor — оркестратор доставки: выполняет pipeline из YAML файла
// (checkout, анализ, quality gate, тесты, push образа, deploy) и
// сообщает итог кодом завершения.
//
// Использование:
//
//	conveyor [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить pipeline локально (код 0 — успех, 1 — ошибка, 2 — отмена)
//	validate  Проверить файл pipeline
//	serve     HTTP API, очередь triggers и расписание
//	enqueue   Поставить trigger в очередь RabbitMQ
//	credentials  Credentials в PostgreSQL для serve --database
//	trigger   Запустить pipeline на сервере
//	runs      Просмотр и отмена runs на сервере
//
// Параметры читаются из флагов и переменных окружения CONVEYOR_*.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// exitError завершает процесс с заданным кодом без сообщения об ошибке.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — stage-sequencing delivery orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v)
		},
	}

	// Defaults
	v.SetDefault("file", "conveyor.yaml")
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("json", false)

	// Environment variables support: CONVEYOR_FILE, CONVEYOR_API_URL, ...
	v.SetEnvPrefix("CONVEYOR")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("api-url", v.GetString("api_url"), "Conveyor server URL for remote commands")
	rootCmd.PersistentFlags().Bool("json", v.GetBool("json"), "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(v.GetString("api_url")) }
	outputFn := func() *cli.Output { return cli.NewOutput(v.GetBool("json")) }

	rootCmd.AddCommand(
		newRunCmd(v),
		newValidateCmd(v),
		newServeCmd(v),
		newEnqueueCmd(v),
		newCredentialsCmd(v),
		cli.NewTriggerCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
	)

	return rootCmd
}

// bindFlags привязывает флаги выполняемой команды к ключам viper
// ("build-id" → "build_id"). Привязка делается после разбора, поэтому
// одноимённые флаги разных команд не перекрывают друг друга.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func main() {
	rootCmd := newRootCmd(viper.GetViper())

	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
